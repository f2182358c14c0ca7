// Package sliceutil provides generic slice helpers.
package sliceutil

// Deduplicate keeps the first item of every key, in order.
//
//	type app struct{ namespace, model string }
//	unique := sliceutil.Deduplicate(bots, func(b *story.Bot) app {
//		return app{b.Namespace, b.NLPModel}
//	})
func Deduplicate[T any, K comparable](items []T, key func(T) K) []T {
	if len(items) == 0 {
		return items
	}
	seen := make(map[K]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}
