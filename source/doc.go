// Package source fetches the upstream pages the service republishes and
// extracts their fields.
//
// Two sites are read: the community site, which lists the drops of the current
// season and the products of each drop, and the shop, which lists its categories
// and the products of each category. Every method of Client downloads one page,
// so its results are meant to be memoized (see openaio.MemoCache).
package source
