package trial

import "math/rand"

// UniqueTrials crosses every factor level of d.
func UniqueTrials(d Design) []Trial {
	out := make([]Trial, 0, len(d.PrimeDirections)*len(d.MaskDirections)*len(d.Positions)*len(d.SOAs))
	for _, p := range d.PrimeDirections {
		for _, m := range d.MaskDirections {
			for _, pos := range d.Positions {
				for _, soa := range d.SOAs {
					out = append(out, Trial{
						PrimeDirection: p,
						MaskDirection:  m,
						Position:       pos,
						SOA:            soa,
						Congruent:      p == m,
					})
				}
			}
		}
	}
	return out
}

// BlockTrials repeats the unique trials and shuffles them with rng.
func BlockTrials(d Design, repeat int, rng *rand.Rand) []Trial {
	if repeat < 1 {
		repeat = 1
	}
	unique := UniqueTrials(d)
	out := make([]Trial, 0, len(unique)*repeat)
	for i := 0; i < repeat; i++ {
		out = append(out, unique...)
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
