package export

import "retro/api/internal/store"

// BuildDocument flattens a snapshot into the export shape. Vote counts are
// tallied per target and reported on groups only.
func BuildDocument(snap store.Snapshot) Document {
	tally := make(map[string]int, len(snap.Votes))
	for _, v := range snap.Votes {
		tally[v.TargetID]++
	}

	doc := Document{
		SessionID:    snap.Session.ID,
		Facilitator:  snap.Session.FacilitatorEmail,
		Date:         snap.Session.CreatedAt.UTC(),
		Framework:    Framework,
		Participants: make([]Participant, 0, len(snap.Participants)),
		Notes:        make([]Note, 0, len(snap.Notes)),
		Groups:       make([]Group, 0, len(snap.Groups)),
		ActionItems:  make([]ActionItem, 0, len(snap.ActionItems)),
	}
	for _, p := range snap.Participants {
		doc.Participants = append(doc.Participants, Participant{
			Email:  p.Email,
			Role:   p.Role,
			Joined: p.Status == store.StatusJoined,
		})
	}
	for _, n := range snap.Notes {
		doc.Notes = append(doc.Notes, Note{
			ID:      n.ID,
			Author:  n.AuthorEmail,
			Column:  n.Column,
			Text:    n.Text,
			GroupID: n.GroupID,
		})
	}
	for _, g := range snap.Groups {
		group := Group{
			ID:      g.ID,
			Title:   g.Title,
			Column:  g.Column,
			NoteIDs: []string{},
			Votes:   tally[g.ID],
		}
		for _, n := range snap.Notes {
			if n.InGroup(g.ID) {
				group.NoteIDs = append(group.NoteIDs, n.ID)
			}
		}
		doc.Groups = append(doc.Groups, group)
	}
	for _, a := range snap.ActionItems {
		doc.ActionItems = append(doc.ActionItems, ActionItem{
			Title:     a.Title,
			Assignee:  a.Assignee,
			LinkedTo:  a.LinkedTo,
			CreatedAt: a.CreatedAt.UTC(),
		})
	}
	return doc
}

// NotesIn returns the ungrouped notes of one board column.
func (d Document) NotesIn(column string) []Note {
	var out []Note
	for _, n := range d.Notes {
		if n.Column == column && n.GroupID == nil {
			out = append(out, n)
		}
	}
	return out
}

// GroupsIn returns the groups placed in one board column.
func (d Document) GroupsIn(column string) []Group {
	var out []Group
	for _, g := range d.Groups {
		if g.Column == column {
			out = append(out, g)
		}
	}
	return out
}

// NoteText resolves a note id to its text for rendering group members.
func (d Document) NoteText(id string) string {
	for _, n := range d.Notes {
		if n.ID == id {
			return n.Text
		}
	}
	return ""
}
