package syncproto

import "automerge/internal/actor"

// Receive applies an incoming message:
// applies any supplied changes (buffering ones whose deps are absent),
// recomputes shared_heads as the meet of local and peer heads that are
// now applied, and records the peer's heads/need/have for the next
// Generate call.
func Receive(host Host, s *State, msg *Message) error {
	for _, data := range msg.Changes {
		if err := host.ApplyChangeBytes(data); err != nil {
			return err
		}
	}

	localHeads := host.Heads()
	localClosure := host.Closure(localHeads)

	var shared []actor.ChangeHash
	for _, h := range msg.Heads {
		if localClosure[h] {
			shared = append(shared, h)
		}
	}
	s.SharedHeads = shared

	s.TheirHeads = msg.Heads
	s.TheirNeed = msg.Need
	s.TheirHave = msg.Have

	return nil
}
