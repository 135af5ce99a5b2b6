package ledger

// RatingsRange returns the ratings in [start, min(end, count)). Windows wider
// than MaxPageSize are rejected.
func (l *Ledger) RatingsRange(key EntityKey, start, end uint64) ([]Rating, error) {
	const op = "ratings_range"
	if start > end {
		return nil, fail(KindValidation, op, ErrInvalidRange)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if end-start > l.params.MaxPageSize {
		return nil, fail(KindResourceLimit, op, ErrWindowTooLarge)
	}
	st := l.entity(key)
	if st == nil {
		return []Rating{}, nil
	}
	n := uint64(len(st.ratings))
	if end > n {
		end = n
	}
	if start >= end {
		return []Rating{}, nil
	}
	out := make([]Rating, end-start)
	copy(out, st.ratings[start:end])
	return out, nil
}

// Ratings returns an entity's full history. It refuses once the history
// outgrows UnboundedReadLimit; use RatingsRange instead.
func (l *Ledger) Ratings(key EntityKey) ([]Rating, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := l.entity(key)
	if st == nil {
		return []Rating{}, nil
	}
	if uint64(len(st.ratings)) > l.params.UnboundedReadLimit {
		return nil, fail(KindResourceLimit, "ratings", ErrCollectionTooLarge)
	}
	out := make([]Rating, len(st.ratings))
	copy(out, st.ratings)
	return out, nil
}

// PendingRefunds returns up to maxResults indices of the rater's ratings
// that are marked and unclaimed, scanning at most ScanLimit ratings from
// start. Pass Next as the following start while HasMore is set. HasMore
// only tracks scan progress, so a caller may see one trailing empty page.
func (l *Ledger) PendingRefunds(key EntityKey, rater string, start, maxResults uint64) (PendingPage, error) {
	const op = "pending_refunds"
	if maxResults == 0 {
		return PendingPage{}, fail(KindValidation, op, ErrInvalidPageSize)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if maxResults > l.params.MaxPageSize {
		return PendingPage{}, fail(KindResourceLimit, op, ErrWindowTooLarge)
	}
	page := PendingPage{Indices: []uint64{}, Next: start}
	st := l.entity(key)
	if st == nil {
		return page, nil
	}
	n := uint64(len(st.ratings))
	if start >= n {
		page.Next = n
		return page, nil
	}

	limit := n
	if n-start > l.params.ScanLimit {
		limit = start + l.params.ScanLimit
	}
	i := start
	for ; i < limit && uint64(len(page.Indices)) < maxResults; i++ {
		if st.ratings[i].Rater != rater {
			continue
		}
		if f := st.refunds[i]; f.Marked && !f.Claimed {
			page.Indices = append(page.Indices, i)
		}
	}
	page.Next = i
	page.HasMore = i < n
	return page, nil
}
