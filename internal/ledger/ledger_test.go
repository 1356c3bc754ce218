package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"refgate-bot/internal/database"
	"refgate-bot/internal/models"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := database.ConnectSQLiteQuiet(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return New(db)
}

func ref(id int64) *int64 { return &id }

func mustArrive(t *testing.T, l *Ledger, user int64, referrer *int64) Arrival {
	t.Helper()
	a, err := l.RegisterArrival(context.Background(), user, referrer, "")
	if err != nil {
		t.Fatalf("RegisterArrival(%d): %v", user, err)
	}
	return a
}

func assertCount(t *testing.T, l *Ledger, user int64, want int) {
	t.Helper()
	got, err := l.ReferralCount(context.Background(), user)
	if err != nil {
		t.Fatalf("ReferralCount(%d): %v", user, err)
	}
	if got != want {
		t.Fatalf("ReferralCount(%d): want %d, got %d", user, want, got)
	}
	edges, err := l.EdgeCount(context.Background(), user)
	if err != nil {
		t.Fatalf("EdgeCount(%d): %v", user, err)
	}
	if edges != int64(want) {
		t.Fatalf("EdgeCount(%d): want %d, got %d", user, want, edges)
	}
}

func TestRegisterArrival_FirstArrivalWithoutReferrer(t *testing.T) {
	l := openTestLedger(t)

	a := mustArrive(t, l, 1, nil)
	if !a.IsNewUser || a.Linked {
		t.Fatalf("unexpected arrival %+v", a)
	}
	assertCount(t, l, 1, 0)

	again := mustArrive(t, l, 1, nil)
	if again.IsNewUser {
		t.Fatalf("second arrival must not be new")
	}
}

func TestRegisterArrival_LinksReferrerAndUnlocksOnce(t *testing.T) {
	l := openTestLedger(t)
	mustArrive(t, l, 1, nil)

	a := mustArrive(t, l, 2, ref(1))
	if !a.IsNewUser || !a.Linked || !a.ReferrerUnlocked || a.ReferrerID != 1 {
		t.Fatalf("expected new linked arrival that unlocks the referrer, got %+v", a)
	}
	assertCount(t, l, 1, 1)

	var u models.User
	if err := l.DB.Where("telegram_id = ?", 2).First(&u).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if u.ReferrerID == nil || *u.ReferrerID != 1 {
		t.Fatalf("expected referrer 1 recorded on user 2, got %v", u.ReferrerID)
	}

	b := mustArrive(t, l, 3, ref(1))
	if !b.Linked || b.ReferrerUnlocked {
		t.Fatalf("second referral must link but not re-notify, got %+v", b)
	}
	assertCount(t, l, 1, 2)
}

func TestRegisterArrival_RepeatArrivalDoesNotDoubleCount(t *testing.T) {
	l := openTestLedger(t)
	mustArrive(t, l, 1, nil)
	mustArrive(t, l, 2, ref(1))

	a := mustArrive(t, l, 2, ref(1))
	if a.IsNewUser || a.Linked {
		t.Fatalf("repeat arrival must be a no-op, got %+v", a)
	}
	assertCount(t, l, 1, 1)
}

func TestRegisterArrival_ReferrerIsImmutable(t *testing.T) {
	l := openTestLedger(t)
	mustArrive(t, l, 1, nil)
	mustArrive(t, l, 9, nil)
	mustArrive(t, l, 2, ref(1))

	mustArrive(t, l, 2, ref(9))
	assertCount(t, l, 1, 1)
	assertCount(t, l, 9, 0)
}

func TestRegisterArrival_SelfReferralIsIgnored(t *testing.T) {
	l := openTestLedger(t)

	self := mustArrive(t, l, 5, ref(5))
	if !self.IsNewUser || self.Linked {
		t.Fatalf("self-referral must not link, got %+v", self)
	}
	assertCount(t, l, 5, 0)
}

func TestRegisterArrival_CreditsReferrerWhoHasNotStarted(t *testing.T) {
	l := openTestLedger(t)

	a := mustArrive(t, l, 6, ref(777))
	if !a.IsNewUser || !a.Linked || a.ReferrerID != 777 || !a.ReferrerUnlocked {
		t.Fatalf("referrer must be credited before its own arrival, got %+v", a)
	}
	assertCount(t, l, 777, 1)

	ids, err := l.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(ids) != 1 || ids[0] != 6 {
		t.Fatalf("placeholder referrer must not be listed before it starts, got %v", ids)
	}

	later := mustArrive(t, l, 777, nil)
	if !later.IsNewUser {
		t.Fatalf("the referrer's own first arrival must count as new")
	}
	assertCount(t, l, 777, 1)

	again := mustArrive(t, l, 777, nil)
	if again.IsNewUser {
		t.Fatalf("second arrival must not be new")
	}
}

func TestRegisterArrival_PlaceholderCanBeReferred(t *testing.T) {
	l := openTestLedger(t)
	mustArrive(t, l, 1, nil)
	mustArrive(t, l, 2, ref(9))

	a := mustArrive(t, l, 9, ref(1))
	if !a.IsNewUser || !a.Linked {
		t.Fatalf("placeholder's first arrival must link to its referrer, got %+v", a)
	}
	assertCount(t, l, 1, 1)
	assertCount(t, l, 9, 1)
}

func TestRegisterArrival_ConcurrentDistinctReferredUsers(t *testing.T) {
	l := openTestLedger(t)
	mustArrive(t, l, 1, nil)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := l.RegisterArrival(context.Background(), id, ref(1), ""); err != nil {
				errs <- err
			}
		}(int64(100 + i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent arrival: %v", err)
	}
	assertCount(t, l, 1, n)
}

func TestRegisterArrival_ConcurrentDuplicateArrivals(t *testing.T) {
	l := openTestLedger(t)
	mustArrive(t, l, 1, nil)

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		newCount int
		unlocks  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := l.RegisterArrival(context.Background(), 2, ref(1), "")
			if err != nil {
				t.Errorf("arrival: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if a.IsNewUser {
				newCount++
			}
			if a.ReferrerUnlocked {
				unlocks++
			}
		}()
	}
	wg.Wait()

	if newCount != 1 {
		t.Fatalf("exactly one arrival should be new, got %d", newCount)
	}
	if unlocks != 1 {
		t.Fatalf("exactly one arrival should unlock the referrer, got %d", unlocks)
	}
	assertCount(t, l, 1, 1)
}

func TestReferralCount_NeverDecreases(t *testing.T) {
	l := openTestLedger(t)
	mustArrive(t, l, 1, nil)

	last := 0
	for i := int64(0); i < 5; i++ {
		mustArrive(t, l, 50+i, ref(1))
		mustArrive(t, l, 50+i, ref(1))
		got, err := l.ReferralCount(context.Background(), 1)
		if err != nil {
			t.Fatalf("ReferralCount: %v", err)
		}
		if got < last {
			t.Fatalf("count decreased from %d to %d", last, got)
		}
		last = got
	}
	if last != 5 {
		t.Fatalf("expected 5 referrals, got %d", last)
	}
}

func TestUsers_ListsInArrivalOrder(t *testing.T) {
	l := openTestLedger(t)
	for _, id := range []int64{30, 10, 20} {
		mustArrive(t, l, id, nil)
	}
	ids, err := l.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(ids) != 3 || ids[0] != 30 || ids[1] != 10 || ids[2] != 20 {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestReferralCount_UnknownUserIsZero(t *testing.T) {
	l := openTestLedger(t)
	assertCount(t, l, 404, 0)
}
