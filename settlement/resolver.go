/*
resolver.go - Rate resolution priority chain

PURPOSE:
  Pure computation of the payout amount for one (creator, video) pair.
  The chain reflects business intent: a per-video negotiated rate always
  wins (most specific), an individual creator's negotiated base rate
  wins over their grade default, and the grade default is the fallback.

PRIORITY CHAIN (first match wins):
  1. video.CustomRate   -> SourceVideo
  2. star.BaseRate      -> SourceCreator
  3. star.Grade.BaseRate -> SourceGrade
  4. nothing set        -> SourceNone (creator excluded from generation)

ZERO VS ABSENT:
  No rate ever resolves to zero by default. A zero amount is a valid
  explicit setting; absence is SourceNone and the generator must skip
  the creator with a warning instead of silently paying 0.

SEE ALSO:
  - generator.go: Calls ResolveRate per eligible submission
  - types.go: Star, Grade, Video
*/
package settlement

import "github.com/shopspring/decimal"

// RateSource identifies which level of the chain supplied a rate.
type RateSource string

const (
	SourceVideo   RateSource = "VIDEO"
	SourceCreator RateSource = "CREATOR"
	SourceGrade   RateSource = "GRADE"
	SourceNone    RateSource = "NONE"
)

// ResolvedRate is the outcome of rate resolution. Amount is only
// meaningful when Source != SourceNone.
type ResolvedRate struct {
	Amount decimal.Decimal
	Source RateSource
}

// Resolved reports whether a usable rate was found.
func (r ResolvedRate) Resolved() bool {
	return r.Source != SourceNone
}

// ResolveRate determines the per-item payout amount for one submission
// of the given video by the given star. The star's Grade must already
// be populated by the store read when GradeID is set.
func ResolveRate(star Star, video Video) ResolvedRate {
	if video.CustomRate != nil {
		return ResolvedRate{Amount: *video.CustomRate, Source: SourceVideo}
	}
	if star.BaseRate != nil {
		return ResolvedRate{Amount: *star.BaseRate, Source: SourceCreator}
	}
	if star.Grade != nil {
		return ResolvedRate{Amount: star.Grade.BaseRate, Source: SourceGrade}
	}
	return ResolvedRate{Source: SourceNone}
}
