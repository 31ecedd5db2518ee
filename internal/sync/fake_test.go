package sync

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	gosync "sync"

	"github.com/zendegi/directgtd/internal/remote"
)

// fakeRemote is an in-memory remote.Service. It models the server as a
// record set with a monotonically increasing revision; cursors are the
// decimal revision they cover.
type fakeRemote struct {
	mu        gosync.Mutex
	rev       int64
	records   map[string]fakeStored
	deletions map[string]int64

	// pageSize caps records per change page; 0 means everything at once.
	pageSize int
	// batchSizes records len(saves)+len(deletes) of every BatchWrite call.
	batchSizes []int
	// fetchErrs are returned (and consumed) by successive FetchChanges
	// calls before any real work happens.
	fetchErrs []error
	// conflicts marks names whose next save loses with the given server
	// version (nil ServerRecord models an unretrievable one).
	conflicts map[string]*remote.WireRecord
	// failSaves marks names whose saves return OutcomeFailed.
	failSaves map[string]bool

	accountErr error
	zoneCalls  int
	subscribed []string
}

type fakeStored struct {
	rec remote.WireRecord
	rev int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records:   make(map[string]fakeStored),
		deletions: make(map[string]int64),
		conflicts: make(map[string]*remote.WireRecord),
		failSaves: make(map[string]bool),
	}
}

// put seeds a record server-side, as if another device had pushed it.
func (f *fakeRemote) put(rec remote.WireRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rev++
	rec.ChangeTag = []byte(fmt.Sprintf("ct-%d", f.rev))
	f.records[rec.Name] = fakeStored{rec: rec, rev: f.rev}
	delete(f.deletions, rec.Name)
}

// remove deletes a record server-side.
func (f *fakeRemote) remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rev++
	delete(f.records, name)
	f.deletions[name] = f.rev
}

func (f *fakeRemote) get(name string) (remote.WireRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.records[name]
	return s.rec, ok
}

func (f *fakeRemote) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeRemote) CheckAccount(ctx context.Context) error {
	return f.accountErr
}

func (f *fakeRemote) EnsureZone(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zoneCalls++
	return nil
}

func (f *fakeRemote) RegisterNotifications(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, deviceID)
	return nil
}

func (f *fakeRemote) FetchChanges(ctx context.Context, cursor []byte) (*remote.ChangePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	since := int64(0)
	if len(cursor) > 0 {
		n, err := strconv.ParseInt(string(cursor), 10, 64)
		if err != nil {
			return nil, remote.ErrCursorExpired
		}
		since = n
	}

	type change struct {
		rev     int64
		rec     *remote.WireRecord
		deleted string
	}
	var changes []change
	for name, s := range f.records {
		if s.rev > since {
			rec := f.records[name].rec
			changes = append(changes, change{rev: s.rev, rec: &rec})
		}
	}
	for name, rev := range f.deletions {
		if rev > since {
			changes = append(changes, change{rev: rev, deleted: name})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].rev < changes[j].rev })

	page := &remote.ChangePage{}
	limit := len(changes)
	if f.pageSize > 0 && limit > f.pageSize {
		limit = f.pageSize
		page.More = true
	}

	last := since
	for _, c := range changes[:limit] {
		if c.rec != nil {
			page.Changed = append(page.Changed, *c.rec)
		} else {
			page.Deleted = append(page.Deleted, c.deleted)
		}
		last = c.rev
	}
	if limit == len(changes) {
		last = f.rev
	}
	page.Cursor = []byte(strconv.FormatInt(last, 10))
	return page, nil
}

func (f *fakeRemote) BatchWrite(ctx context.Context, saves []remote.WireRecord, deletes []string) ([]remote.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(saves)+len(deletes) > remote.BatchLimit {
		return nil, fmt.Errorf("batch of %d exceeds limit", len(saves)+len(deletes))
	}
	f.batchSizes = append(f.batchSizes, len(saves)+len(deletes))

	var results []remote.WriteResult
	for _, rec := range saves {
		if server, ok := f.conflicts[rec.Name]; ok {
			delete(f.conflicts, rec.Name)
			results = append(results, remote.WriteResult{
				Name:         rec.Name,
				Outcome:      remote.OutcomeConflict,
				ServerRecord: server,
			})
			continue
		}
		if f.failSaves[rec.Name] {
			results = append(results, remote.WriteResult{
				Name:    rec.Name,
				Outcome: remote.OutcomeFailed,
				Error:   "simulated failure",
			})
			continue
		}

		f.rev++
		rec.ChangeTag = []byte(fmt.Sprintf("ct-%d", f.rev))
		f.records[rec.Name] = fakeStored{rec: rec, rev: f.rev}
		delete(f.deletions, rec.Name)
		results = append(results, remote.WriteResult{
			Name:      rec.Name,
			Outcome:   remote.OutcomeSaved,
			ChangeTag: rec.ChangeTag,
		})
	}

	for _, name := range deletes {
		f.rev++
		delete(f.records, name)
		f.deletions[name] = f.rev
		results = append(results, remote.WriteResult{
			Name:    name,
			Outcome: remote.OutcomeDeleted,
		})
	}
	return results, nil
}
