package index

// Comparator orders records for eviction. It returns a negative number when
// a should be evicted before b, a positive number when b goes first, and zero
// when either order is acceptable. now is the current time in unix seconds.
type Comparator func(now int64, a, b Record) int

// DefaultComparator evicts, in order of precedence:
//
//  1. bad records
//  2. truly stale records (past both max-age and stale-while-revalidate)
//  3. records with the larger priority value
//  4. the least recently accessed
//  5. the larger record
func DefaultComparator(now int64, a, b Record) int {
	if a.Bad != b.Bad {
		if a.Bad {
			return -1
		}
		return 1
	}
	if a.Bad {
		return compareSize(a, b)
	}

	aStale, bStale := a.IsTrulyStale(now), b.IsTrulyStale(now)
	if aStale != bStale {
		if aStale {
			return -1
		}
		return 1
	}

	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return -1
		}
		return 1
	}

	if a.Access != b.Access {
		if a.Access < b.Access {
			return -1
		}
		return 1
	}

	return compareSize(a, b)
}

func compareSize(a, b Record) int {
	switch {
	case a.Size > b.Size:
		return -1
	case a.Size < b.Size:
		return 1
	default:
		return 0
	}
}
