package attr

// ReferralKey identifies where a visitor came from: the search engine host
// exactly as it appeared in the referrer plus the normalized keyword. The
// keyword may be empty when the engine was hit without a query.
type ReferralKey struct {
	Domain  string
	Keyword string
}

// ReferralIndex remembers each visitor's first search referral. Inserts are
// first write wins; the second pass only reads. The index lives for one run
// and is never persisted.
type ReferralIndex struct {
	m map[string]ReferralKey
}

func NewReferralIndex() *ReferralIndex {
	return &ReferralIndex{m: make(map[string]ReferralKey)}
}

// Insert records the referral for ip unless one is already present.
func (x *ReferralIndex) Insert(ip string, key ReferralKey) {
	if _, ok := x.m[ip]; !ok {
		x.m[ip] = key
	}
}

func (x *ReferralIndex) Lookup(ip string) (ReferralKey, bool) {
	k, ok := x.m[ip]
	return k, ok
}

func (x *ReferralIndex) Len() int {
	return len(x.m)
}

// RevenueAccumulator sums purchase revenue per referral key, fresh per run.
// Values only ever grow.
type RevenueAccumulator struct {
	m map[ReferralKey]float64
}

func NewRevenueAccumulator() *RevenueAccumulator {
	return &RevenueAccumulator{m: make(map[ReferralKey]float64)}
}

func (a *RevenueAccumulator) Add(key ReferralKey, revenue float64) {
	a.m[key] += revenue
}

func (a *RevenueAccumulator) Len() int {
	return len(a.m)
}

// Each visits every key and its accumulated revenue in map order. Callers
// that need a stable order sort what they collect.
func (a *RevenueAccumulator) Each(f func(ReferralKey, float64)) {
	for k, v := range a.m {
		f(k, v)
	}
}
