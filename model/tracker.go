package model

import "sort"

// Phase values used by the tracker for portrait and sprite completion.
const (
	PhaseIncomplete = 0 // Nothing submitted yet
	PhaseExists     = 1 // At least the mandatory assets exist
	PhaseFull       = 2 // All optional assets exist as well
)

// Credit lists the contributors of one asset kind of a group.
type Credit struct {
	Primary   string   `json:"primary"`   // Credit id of the main author
	Secondary []string `json:"secondary"` // Credit ids of further authors
	Total     int      `json:"total"`     // Total number of contributors
}

// Group is one entry of the tracker: a monster or one of its (nested) forms.
type Group struct {
	Name      string `json:"name"`
	Canon     bool   `json:"canon"`
	ModReward bool   `json:"modreward"`

	PortraitBounty      map[string]int    `json:"portrait_bounty"`
	PortraitComplete    int               `json:"portrait_complete"`
	PortraitCredit      Credit            `json:"portrait_credit"`
	PortraitFiles       map[string]bool   `json:"portrait_files"`
	PortraitLink        string            `json:"portrait_link"`
	PortraitModified    string            `json:"portrait_modified"`
	PortraitPending     map[string]string `json:"portrait_pending"`
	PortraitRecolorLink string            `json:"portrait_recolor_link"`

	SpriteBounty      map[string]int    `json:"sprite_bounty"`
	SpriteComplete    int               `json:"sprite_complete"`
	SpriteCredit      Credit            `json:"sprite_credit"`
	SpriteFiles       map[string]bool   `json:"sprite_files"`
	SpriteLink        string            `json:"sprite_link"`
	SpriteModified    string            `json:"sprite_modified"`
	SpritePending     map[string]string `json:"sprite_pending"`
	SpriteRecolorLink string            `json:"sprite_recolor_link"`

	Subgroups map[int]*Group `json:"subgroups"`
}

// Tracker maps monster ids to their root group. It is read-only once parsed
// and shared between snapshots.
type Tracker map[int]*Group

// Form is a group reached by following FormPath from a monster's root group.
// An empty FormPath denotes the root group itself.
type Form struct {
	MonsterID int
	FormPath  []int
	Group     *Group
}

// MonsterIDs returns all monster ids of the tracker in ascending order.
func (t Tracker) MonsterIDs() []int {
	ids := make([]int, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Forms returns the root group of monsterID and every nested subgroup, depth
// first with subgroup ids in ascending order. ok is false if the monster is
// unknown.
func (t Tracker) Forms(monsterID int) (forms []Form, ok bool) {
	root, ok := t[monsterID]
	if !ok || root == nil {
		return nil, false
	}
	collectForms(monsterID, nil, root, &forms)
	return forms, true
}

// Lookup follows formPath below monsterID and returns the group found there.
func (t Tracker) Lookup(monsterID int, formPath []int) (*Group, bool) {
	g, ok := t[monsterID]
	if !ok || g == nil {
		return nil, false
	}
	for _, id := range formPath {
		g, ok = g.Subgroups[id]
		if !ok || g == nil {
			return nil, false
		}
	}
	return g, true
}

func collectForms(monsterID int, path []int, g *Group, out *[]Form) {
	*out = append(*out, Form{MonsterID: monsterID, FormPath: path, Group: g})
	ids := make([]int, 0, len(g.Subgroups))
	for id := range g.Subgroups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		sub := g.Subgroups[id]
		if sub == nil {
			continue
		}
		// copy so sibling paths never share a backing array
		next := make([]int, len(path)+1)
		copy(next, path)
		next[len(path)] = id
		collectForms(monsterID, next, sub, out)
	}
}
