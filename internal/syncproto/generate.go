package syncproto

import (
	"automerge/internal/actor"
	"automerge/internal/bloom"
)

// Generate produces the next message to send to a peer, or (nil, false)
// if nothing needs to be said.
func Generate(host Host, s *State) (*Message, bool) {
	localHeads := host.Heads()
	sharedClosure := host.Closure(s.SharedHeads)

	nothingNew := sameHeadSet(localHeads, s.LastSentHeads)
	theyKnowShared := subsetOf(s.TheirHeads, sharedClosure)
	if nothingNew && theyKnowShared {
		return nil, false
	}

	have := Have{
		LastSync: append([]actor.ChangeHash{}, s.SharedHeads...),
		Bloom: buildHaveBloom(host, sharedClosure),
	}

	changes := selectChangesToSend(host, s, localHeads)

	msg := &Message{
		Heads: localHeads,
		Need: missingFor(host, localHeads),
		Have: []Have{have},
		Changes: changes,
	}

	s.LastSentHeads = localHeads
	for _, h := range changeHashesOf(host, changes) {
		s.SentHashes[h] = true
	}

	return msg, true
}

// buildHaveBloom builds a Bloom filter over every locally applied change
// not in the closure of shared_heads (spec: "bloom over changes not in
// shared_heads").
func buildHaveBloom(host Host, sharedClosure map[actor.ChangeHash]bool) *bloom.Filter {
	var hashes []actor.ChangeHash
	for _, h := range host.AllHashes() {
		if !sharedClosure[h] {
			hashes = append(hashes, h)
		}
	}
	return bloom.Build(hashes)
}

// selectChangesToSend picks changes the peer definitely lacks per their
// last reported have[] (absent from their Bloom, not yet sent) plus any
// hash they explicitly asked for via need.
func selectChangesToSend(host Host, s *State, localHeads []actor.ChangeHash) [][]byte {
	wanted := make(map[actor.ChangeHash]bool)

	for _, need := range s.TheirNeed {
		if host.Has(need) {
			wanted[need] = true
		}
	}

	if len(s.TheirHave) > 0 {
		localClosure := host.Closure(localHeads)
		for _, have := range s.TheirHave {
			theirKnownClosure := host.Closure(have.LastSync)
			for h := range localClosure {
				if theirKnownClosure[h] {
					continue
				}
				if have.Bloom != nil && have.Bloom.Contains(h) {
					continue
				}
				wanted[h] = true
			}
		}
	}

	var changes [][]byte
	for h := range wanted {
		if s.SentHashes[h] && !containsHash(s.TheirNeed, h) {
			continue
		}
		data, err := host.EncodeChange(h)
		if err != nil {
			continue
		}
		changes = append(changes, data)
	}
	return changes
}

func changeHashesOf(host Host, changes [][]byte) []actor.ChangeHash {
	var out []actor.ChangeHash
	for _, data := range changes {
		if h, err := host.DecodeChangeHash(data); err == nil {
			out = append(out, h)
		}
	}
	return out
}

// missingFor always returns nil: Host exposes no view of changes buffered
// for missing dependencies, so a generated message's need column is always
// empty. Hashes the local side lacks are not requested explicitly; an empty
// need column is valid on the wire.
func missingFor(host Host, heads []actor.ChangeHash) []actor.ChangeHash {
	return nil
}

func sameHeadSet(a, b []actor.ChangeHash) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[actor.ChangeHash]bool, len(a))
	for _, h := range a {
		seen[h] = true
	}
	for _, h := range b {
		if !seen[h] {
			return false
		}
	}
	return true
}
