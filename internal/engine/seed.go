package engine

import (
	"hash/fnv"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/reconcile"
)

// DemoSeeder fills an empty first-run snapshot with fake contacts so the
// lists have something to show. It must never be configured in production.
//
// Output is deterministic for a given owner and RandSeed.
type DemoSeeder struct {
	// Count is the number of records to create. Zero means 4.
	Count int
	// RandSeed fixes the fake data. Zero derives a seed from the owner id.
	RandSeed int64
}

var _ reconcile.Seeder = DemoSeeder{}

// Seed returns demo records for owner. Roles cycle through responder,
// dependent and both; every third record is overdue and the first
// dependent has a manual alert raised.
func (d DemoSeeder) Seed(owner string, now time.Time) []contact.Record {
	n := d.Count
	if n <= 0 {
		n = 4
	}
	seed := d.RandSeed
	if seed == 0 {
		h := fnv.New64a()
		h.Write([]byte(owner))
		seed = int64(h.Sum64() >> 1)
	}
	f := gofakeit.New(seed)

	roles := []contact.Roles{
		{Responder: true},
		{Dependent: true},
		{Responder: true, Dependent: true},
	}
	out := make([]contact.Record, 0, n)
	alerted := false
	for i := 0; i < n; i++ {
		interval := time.Duration(f.Number(8, 48)) * time.Hour
		since := time.Duration(f.Number(1, 7)) * time.Hour
		if i%3 == 2 {
			since = interval + time.Duration(f.Number(1, 12))*time.Hour
		}
		r := contact.Record{
			Owner:           owner,
			ID:              reconcile.DemoPrefix + strconv.Itoa(i+1),
			Roles:           roles[i%len(roles)],
			Name:            contact.NormalizeText(f.Name()),
			PhoneNumber:     contact.NormalizePhone(f.Phone()),
			Note:            f.Sentence(6),
			LastCheckIn:     now.Add(-since),
			CheckInInterval: interval,
			DateAdded:       now,
			LastUpdated:     now,
		}
		if r.Roles.Dependent && !alerted {
			r.ManualAlert = contact.Raised(now.Add(-time.Minute))
			alerted = true
		}
		out = append(out, r)
	}
	return out
}
