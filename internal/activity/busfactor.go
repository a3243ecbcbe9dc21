package activity

// ComputeBusFactor walks authors from most to least active and includes them
// until their cumulative share of commits reaches thresholdPercent. The input
// must already be sorted as CountByAuthor returns it.
func ComputeBusFactor(authors []AuthorCount, thresholdPercent float64) BusFactor {
	bf := BusFactor{Threshold: thresholdPercent}

	total := 0
	for _, a := range authors {
		total += a.Commits
	}
	if total == 0 {
		return bf
	}

	cumulative := 0
	for _, a := range authors {
		cumulative += a.Commits
		row := Ownership{
			Author:            a.Author,
			Commits:           a.Commits,
			Percent:           percent(a.Commits, total),
			CumulativePercent: percent(cumulative, total),
		}
		if bf.OwnershipPercent < thresholdPercent {
			bf.Factor++
			bf.OwnershipPercent = row.CumulativePercent
			row.InBusFactor = true
		}
		bf.Contributors = append(bf.Contributors, row)
	}
	return bf
}

func percent(part, total int) float64 {
	return float64(part) / float64(total) * 100
}
