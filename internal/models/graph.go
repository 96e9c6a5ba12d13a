package models

import (
	"sort"

	"github.com/genesis-ai-dev/langquest-sub009/internal/hash"
)

// QuestGraph is a quest together with the rows it owns, read from one
// side of the local/synced split.
type QuestGraph struct {
	Quest  QuestFields
	Assets []AssetFields
	Refs   []AttachmentRef
}

type refContent struct {
	RecordID     string `json:"record_id"`
	AttachmentID string `json:"attachment_id"`
}

type graphContent struct {
	Quest  QuestContent   `json:"quest"`
	Assets []AssetContent `json:"assets"`
	Refs   []refContent   `json:"refs"`
}

// Hash returns a content hash of the graph that is independent of which
// table set it was read from and of row order.
func (g *QuestGraph) Hash() (string, error) {
	c := graphContent{
		Quest:  g.Quest.HashContent(),
		Assets: make([]AssetContent, 0, len(g.Assets)),
		Refs:   make([]refContent, 0, len(g.Refs)),
	}
	for _, a := range g.Assets {
		c.Assets = append(c.Assets, a.HashContent())
	}
	for _, r := range g.Refs {
		c.Refs = append(c.Refs, refContent{RecordID: r.RecordID, AttachmentID: r.AttachmentID})
	}
	sort.Slice(c.Assets, func(i, j int) bool { return c.Assets[i].ID < c.Assets[j].ID })
	sort.Slice(c.Refs, func(i, j int) bool {
		if c.Refs[i].RecordID != c.Refs[j].RecordID {
			return c.Refs[i].RecordID < c.Refs[j].RecordID
		}
		return c.Refs[i].AttachmentID < c.Refs[j].AttachmentID
	})
	return hash.Content(c)
}

// AttachmentIDs returns the distinct attachment ids referenced by the graph.
func (g *QuestGraph) AttachmentIDs() []string {
	seen := make(map[string]bool, len(g.Refs))
	ids := make([]string, 0, len(g.Refs))
	for _, r := range g.Refs {
		if !seen[r.AttachmentID] {
			seen[r.AttachmentID] = true
			ids = append(ids, r.AttachmentID)
		}
	}
	sort.Strings(ids)
	return ids
}

// All returns every model managed by the relational store, for schema
// creation.
func All() []interface{} {
	return []interface{}{
		&LocalQuest{},
		&SyncedQuest{},
		&LocalAsset{},
		&SyncedAsset{},
		&Attachment{},
		&AttachmentRef{},
		&SyncMeta{},
	}
}
