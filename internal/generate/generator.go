// Package generate produces the synthetic transaction feed: mostly
// unremarkable activity over a 30-day window, seeded with a configurable
// share of transactions carrying known fraud patterns. Every generated
// row keeps its ground-truth label so detection metrics can be computed
// downstream.
package generate

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

// TransactionTypes are the generated transaction categories.
var TransactionTypes = []string{
	domain.TypeDeposit,
	domain.TypeWithdrawal,
	domain.TypeTransfer,
	domain.TypePayment,
	domain.TypeRefund,
}

// MerchantCategories are the ordinary merchant categories. The
// suspicious sentinel is deliberately not among them; only fraud
// patterns emit it.
var MerchantCategories = []string{
	"retail", "food", "travel", "entertainment",
	"utilities", "healthcare", "financial",
}

var merchantNames = []string{
	"Northwind Traders", "Globex Retail", "Acme Supply", "Blue Harbor Foods",
	"Transit Plus", "Starlight Cinemas", "Metro Utilities", "Lakeside Clinic",
	"Summit Financial", "Cedar Market", "Pioneer Goods", "Harbor Cafe",
}

// Options controls a generation run.
type Options struct {
	Records    int
	Accounts   int
	FraudRatio float64

	// Seed fixes the RNG; 0 means time-seeded.
	Seed int64

	// Now anchors the 30-day window; zero means time.Now.
	Now time.Time
}

// Generator produces a synthetic transaction batch. Not safe for
// concurrent use; each run gets its own Generator.
type Generator struct {
	opts     Options
	rng      *rand.Rand
	now      time.Time
	accounts []string
}

// New creates a generator. With a non-zero seed the output is fully
// deterministic, transaction IDs included.
func New(opts Options) *Generator {
	if opts.Records <= 0 {
		opts.Records = 1000
	}
	if opts.Accounts <= 0 {
		opts.Accounts = 100
	}
	if opts.FraudRatio < 0 {
		opts.FraudRatio = 0
	}
	if opts.FraudRatio > 1 {
		opts.FraudRatio = 1
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC().Truncate(time.Minute)

	g := &Generator{opts: opts, rng: rng, now: now}
	g.accounts = make([]string, opts.Accounts)
	for i := range g.accounts {
		g.accounts[i] = fmt.Sprintf("%010d", rng.Int63n(1e10))
	}
	return g
}

// Generate produces exactly opts.Records transactions sorted by
// timestamp. int(Records*FraudRatio) of them carry a fraud pattern and
// are labeled known_fraud=true; the rest are labeled false.
func (g *Generator) Generate() []*domain.Transaction {
	numFraud := int(float64(g.opts.Records) * g.opts.FraudRatio)

	txs := make([]*domain.Transaction, 0, g.opts.Records)

	// Fraud patterns cycle so every pattern appears whenever the fraud
	// budget allows. The burst pattern emits three rows at once; all
	// rows count against the total.
	pattern := 0
	fraudLeft := numFraud
	for fraudLeft > 0 {
		switch pattern % 4 {
		case 2:
			if fraudLeft < 3 {
				// Not enough budget for a burst; fall back to a
				// single-row pattern.
				txs = append(txs, g.fraudLargeAmount())
				fraudLeft--
				break
			}
			burst := g.fraudBurst()
			txs = append(txs, burst...)
			fraudLeft -= len(burst)
		case 0:
			txs = append(txs, g.fraudLargeAmount())
			fraudLeft--
		case 1:
			txs = append(txs, g.fraudOddHour())
			fraudLeft--
		default:
			txs = append(txs, g.fraudSuspiciousMerchant())
			fraudLeft--
		}
		pattern++
	}

	for len(txs) < g.opts.Records {
		txs = append(txs, g.normal())
	}

	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].ID < txs[j].ID
	})
	return txs
}

// normal produces an unlabeled-benign transaction with type-appropriate
// amount ranges and merchant fields only where the type calls for them.
func (g *Generator) normal() *domain.Transaction {
	typ := TransactionTypes[g.rng.Intn(len(TransactionTypes))]

	var amount float64
	switch typ {
	case domain.TypeDeposit:
		amount = g.uniform(10, 5000)
	case domain.TypeWithdrawal:
		amount = g.uniform(10, 1000)
	case domain.TypeTransfer:
		amount = g.uniform(5, 2000)
	case domain.TypePayment:
		amount = g.uniform(5, 500)
	default: // refund
		amount = g.uniform(5, 200)
	}

	tx := &domain.Transaction{
		ID:            g.id(),
		Timestamp:     g.timestamp(),
		AccountNumber: g.account(),
		Type:          typ,
		Amount:        amount,
		KnownFraud:    domain.SomeBool(false),
	}

	switch typ {
	case domain.TypePayment, domain.TypeRefund:
		tx.MerchantName = domain.SomeString(merchantNames[g.rng.Intn(len(merchantNames))])
		tx.MerchantCategory = domain.SomeString(MerchantCategories[g.rng.Intn(len(MerchantCategories))])
	case domain.TypeTransfer:
		tx.RecipientAccount = domain.SomeString(g.account())
	}
	return tx
}

func (g *Generator) fraudLargeAmount() *domain.Transaction {
	tx := g.normal()
	tx.Amount = g.uniform(5000, 50000)
	tx.KnownFraud = domain.SomeBool(true)
	return tx
}

func (g *Generator) fraudOddHour() *domain.Transaction {
	tx := g.normal()
	ts := tx.Timestamp
	tx.Timestamp = time.Date(ts.Year(), ts.Month(), ts.Day(),
		1+g.rng.Intn(4), ts.Minute(), 0, 0, time.UTC)
	tx.KnownFraud = domain.SomeBool(true)
	return tx
}

// fraudBurst emits three withdrawals on one account minutes apart in
// the small hours, so the rapid-succession and odd-hours rules both
// fire on every row.
func (g *Generator) fraudBurst() []*domain.Transaction {
	account := g.account()
	day := g.timestamp()
	start := time.Date(day.Year(), day.Month(), day.Day(), 2, g.rng.Intn(30), 0, 0, time.UTC)

	burst := make([]*domain.Transaction, 3)
	for i := range burst {
		burst[i] = &domain.Transaction{
			ID:            g.id(),
			Timestamp:     start.Add(time.Duration(i) * 4 * time.Minute),
			AccountNumber: account,
			Type:          domain.TypeWithdrawal,
			Amount:        g.uniform(10, 1000),
			KnownFraud:    domain.SomeBool(true),
		}
	}
	return burst
}

func (g *Generator) fraudSuspiciousMerchant() *domain.Transaction {
	tx := g.normal()
	tx.Type = domain.TypePayment
	tx.MerchantName = domain.SomeString(merchantNames[g.rng.Intn(len(merchantNames))])
	tx.MerchantCategory = domain.SomeString(domain.MerchantSentinel)
	tx.RecipientAccount = domain.OptString{}
	tx.KnownFraud = domain.SomeBool(true)
	return tx
}

// id draws a transaction UUID from the seeded RNG so runs are
// reproducible end to end.
func (g *Generator) id() string {
	var b [16]byte
	g.rng.Read(b[:])
	u, err := uuid.FromBytes(b[:])
	if err != nil {
		// 16 bytes always form a valid UUID.
		panic(err)
	}
	return u.String()
}

func (g *Generator) account() string {
	return g.accounts[g.rng.Intn(len(g.accounts))]
}

// timestamp picks a moment within the trailing 30-day window.
func (g *Generator) timestamp() time.Time {
	return g.now.Add(-time.Duration(g.rng.Intn(30*24*60)) * time.Minute)
}

func (g *Generator) uniform(lo, hi float64) float64 {
	v := lo + g.rng.Float64()*(hi-lo)
	return float64(int(v*100)) / 100
}
