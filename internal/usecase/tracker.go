package usecase

import "sort"

// InteractionTracker holds one user's liked and bookmarked post ids.
// Membership only: post like counters are display state and belong to
// the Coordinator. Not safe for concurrent use on its own; the owning
// Coordinator serializes access.
type InteractionTracker struct {
	liked      map[string]struct{}
	bookmarked map[string]struct{}
}

func NewInteractionTracker() *InteractionTracker {
	return &InteractionTracker{
		liked:      make(map[string]struct{}),
		bookmarked: make(map[string]struct{}),
	}
}

// Seed replaces both sets, e.g. from the offline cache.
func (t *InteractionTracker) Seed(liked, bookmarked []string) {
	t.liked = make(map[string]struct{}, len(liked))
	for _, id := range liked {
		t.liked[id] = struct{}{}
	}
	t.bookmarked = make(map[string]struct{}, len(bookmarked))
	for _, id := range bookmarked {
		t.bookmarked[id] = struct{}{}
	}
}

func (t *InteractionTracker) IsLiked(postID string) bool {
	_, ok := t.liked[postID]
	return ok
}

func (t *InteractionTracker) IsBookmarked(postID string) bool {
	_, ok := t.bookmarked[postID]
	return ok
}

// ToggleLike flips membership and returns the prior state. Calling it
// twice is a no-op overall, which is what the failure compensation in
// the Coordinator relies on.
func (t *InteractionTracker) ToggleLike(postID string) bool {
	if _, ok := t.liked[postID]; ok {
		delete(t.liked, postID)
		return true
	}
	t.liked[postID] = struct{}{}
	return false
}

// ToggleBookmark flips membership and returns the prior state.
func (t *InteractionTracker) ToggleBookmark(postID string) bool {
	if _, ok := t.bookmarked[postID]; ok {
		delete(t.bookmarked, postID)
		return true
	}
	t.bookmarked[postID] = struct{}{}
	return false
}

// LikedIDs returns the liked post ids in sorted order.
func (t *InteractionTracker) LikedIDs() []string {
	return sortedKeys(t.liked)
}

// BookmarkedIDs returns the bookmarked post ids in sorted order.
func (t *InteractionTracker) BookmarkedIDs() []string {
	return sortedKeys(t.bookmarked)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
