package redistribute

import "sort"

// Order sorts the sends by destination and the receives by source. The sort
// is stable, so every rank derives the same traversal from its own schedule
// without talking to anyone.
func (s *Schedule) Order() {
	sort.SliceStable(s.Sends, func(i, j int) bool { return s.Sends[i].Peer < s.Sends[j].Peer })
	sort.SliceStable(s.Recvs, func(i, j int) bool { return s.Recvs[i].Peer < s.Recvs[j].Peer })
}

// step is one pairwise operation of the interleaved traversal
type step struct {
	send bool
	idx  int // into Sends or Recvs
	peer int
}

// interleave merges the ordered sends and receives into the single traversal
// every rank follows in each pairwise phase: the smaller peer id goes first,
// and when a rank both sends to and receives from the same peer, the lower of
// the two ranks receives first while the higher sends first.
func (s *Schedule) interleave(rank int) []step {
	var (
		steps = make([]step, 0, len(s.Sends)+len(s.Recvs))
		i, j  int
	)
	for i < len(s.Sends) || j < len(s.Recvs) {
		var recvFirst bool
		switch {
		case i == len(s.Sends):
			recvFirst = true
		case j == len(s.Recvs):
			recvFirst = false
		case s.Recvs[j].Peer != s.Sends[i].Peer:
			recvFirst = s.Recvs[j].Peer < s.Sends[i].Peer
		default:
			recvFirst = rank < s.Recvs[j].Peer
		}
		if recvFirst {
			steps = append(steps, step{send: false, idx: j, peer: s.Recvs[j].Peer})
			j++
		} else {
			steps = append(steps, step{send: true, idx: i, peer: s.Sends[i].Peer})
			i++
		}
	}
	return steps
}
