package imapmemserver

import (
	"sort"
	"time"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/imapserver"
	"github.com/coldwire/imapd/internal"
)

var _ imapserver.SessionThread = (*UserSession)(nil)

// Thread groups the messages matching criteria into threads, RFC 5256.
//
// REFERENCES threads by In-Reply-To links to the Message-Id of another
// message in the result set; a message with no such parent becomes a
// thread root of its own and is not clustered by subject. ORDEREDSUBJECT
// always clusters by subject.
func (mbox *MailboxView) Thread(algorithm imap.ThreadAlgorithm, criteria *imap.SearchCriteria) ([]imapserver.ThreadNode, error) {
	mbox.mutex.Lock()
	defer mbox.mutex.Unlock()

	mbox.staticSearchCriteria(criteria)

	type entry struct {
		uid       imap.UID
		date      time.Time
		messageID string
		inReplyTo []string
		key       internal.ThreadKey
	}

	var entries []entry
	for i, msg := range mbox.l {
		seqNum := mbox.tracker.EncodeSeqNum(uint32(i) + 1)
		if !msg.search(seqNum, criteria) {
			continue
		}
		env := msg.envelope()
		e := entry{uid: msg.uid, date: msg.t}
		if env != nil {
			e.messageID = env.MessageID
			e.inReplyTo = env.InReplyTo
			e.key = internal.NewThreadKey(env.Subject)
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].date.Before(entries[j].date)
	})

	byMessageID := make(map[string]int, len(entries))
	for i, e := range entries {
		if e.messageID != "" {
			byMessageID[e.messageID] = i
		}
	}

	children := make(map[int][]int)
	var roots []int
	for i, e := range entries {
		parent := -1
		if algorithm == imap.ThreadReferences {
			for _, ref := range e.inReplyTo {
				if j, ok := byMessageID[ref]; ok && j != i {
					parent = j
					break
				}
			}
		}
		if parent < 0 {
			roots = append(roots, i)
		} else {
			children[parent] = append(children[parent], i)
		}
	}

	if algorithm != imap.ThreadReferences {
		// ORDEREDSUBJECT: cluster strictly by normalized subject, oldest
		// message in each cluster as the root, the rest chained after it
		// in date order.
		roots = roots[:0]
		children = make(map[int][]int)
		byKey := make(map[internal.ThreadKey][]int)
		var keyOrder []internal.ThreadKey
		for i, e := range entries {
			if _, ok := byKey[e.key]; !ok {
				keyOrder = append(keyOrder, e.key)
			}
			byKey[e.key] = append(byKey[e.key], i)
		}
		sort.SliceStable(keyOrder, func(i, j int) bool {
			return entries[byKey[keyOrder[i]][0]].date.Before(entries[byKey[keyOrder[j]][0]].date)
		})
		for _, k := range keyOrder {
			idxs := byKey[k]
			roots = append(roots, idxs[0])
			for n := 0; n+1 < len(idxs); n++ {
				children[idxs[n]] = append(children[idxs[n]], idxs[n+1])
			}
		}
	}

	var build func(i int) imapserver.ThreadNode
	build = func(i int) imapserver.ThreadNode {
		node := imapserver.ThreadNode{UID: entries[i].uid}
		for _, c := range children[i] {
			node.Children = append(node.Children, build(c))
		}
		return node
	}

	nodes := make([]imapserver.ThreadNode, 0, len(roots))
	for _, i := range roots {
		nodes = append(nodes, build(i))
	}
	return nodes, nil
}
