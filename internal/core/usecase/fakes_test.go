package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

type memStore struct {
	mu        sync.Mutex
	nextSubID int64
	nextVerID int64
	subs      map[int64]*domain.Submission
	versions  map[int64][]domain.Version

	failedDiagnostics map[int64]string
	createErr         error
	appendErr         error
}

func newMemStore() *memStore {
	return &memStore{
		subs:              make(map[int64]*domain.Submission),
		versions:          make(map[int64][]domain.Version),
		failedDiagnostics: make(map[int64]string),
	}
}

func (m *memStore) Create(_ context.Context, sub *domain.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, s := range m.subs {
		if s.AuthorID == sub.AuthorID && s.ConferenceID == sub.ConferenceID {
			return domain.WrapError(domain.ErrDuplicateSubmission, "insert submission", errors.New("unique violation"))
		}
	}
	m.nextSubID++
	sub.ID = m.nextSubID
	copySub := *sub
	m.subs[sub.ID] = &copySub
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	delete(m.versions, id)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get submission", fmt.Errorf("id=%d", id))
	}
	copySub := *sub
	return &copySub, nil
}

func (m *memStore) FindByAuthor(_ context.Context, authorID, conferenceID int64) (*domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.AuthorID == authorID && s.ConferenceID == conferenceID {
			copySub := *s
			return &copySub, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "find submission", errors.New("none"))
}

func (m *memStore) ListByAuthor(_ context.Context, authorID int64) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(s *domain.Submission) bool { return s.AuthorID == authorID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) sorted(filter func(*domain.Submission) bool) []domain.Submission {
	out := make([]domain.Submission, 0)
	for _, s := range m.subs {
		if filter(s) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListByConference(_ context.Context, conferenceID int64, status domain.SubmissionStatus) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *domain.Submission) bool {
		return s.ConferenceID == conferenceID && (status == "" || s.Status == status)
	}), nil
}

func (m *memStore) CountByStatus(_ context.Context, conferenceID int64) (map[domain.SubmissionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.SubmissionStatus]int)
	for _, s := range m.subs {
		if s.ConferenceID == conferenceID {
			out[s.Status]++
		}
	}
	return out, nil
}

func (m *memStore) ListPrintable(_ context.Context, conferenceID int64) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *domain.Submission) bool {
		return s.ConferenceID == conferenceID && s.Printable()
	}), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, status domain.SubmissionStatus, conversion domain.ConversionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update status", fmt.Errorf("id=%d", id))
	}
	sub.Status = status
	sub.ConversionState = conversion
	if conversion == domain.ConversionNone || conversion == domain.ConversionPending {
		sub.FinalFile = ""
		sub.ConversionError = ""
	}
	return nil
}

func (m *memStore) MarkConverted(_ context.Context, id int64, finalFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok || sub.Status != domain.StatusReadyForPrint {
		return domain.WrapError(domain.ErrConflict, "mark converted", fmt.Errorf("id=%d", id))
	}
	sub.FinalFile = finalFile
	sub.ConversionState = domain.ConversionDone
	sub.ConversionError = ""
	return nil
}

func (m *memStore) MarkConversionFailed(_ context.Context, id int64, diagnostics string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "mark failed", fmt.Errorf("id=%d", id))
	}
	sub.ConversionState = domain.ConversionFailed
	sub.ConversionError = diagnostics
	m.failedDiagnostics[id] = diagnostics
	return nil
}

func (m *memStore) NextNumber(_ context.Context, submissionID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	highest := 0
	for _, v := range m.versions[submissionID] {
		if v.Number > highest {
			highest = v.Number
		}
	}
	return highest + 1, nil
}

func (m *memStore) Append(_ context.Context, v *domain.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, existing := range m.versions[v.SubmissionID] {
		if existing.Number == v.Number {
			return domain.WrapError(domain.ErrConflict, "append version", fmt.Errorf("number %d taken", v.Number))
		}
	}
	m.nextVerID++
	v.ID = m.nextVerID
	m.versions[v.SubmissionID] = append(m.versions[v.SubmissionID], *v)
	return nil
}

func (m *memStore) Latest(_ context.Context, submissionID int64) (*domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.versions[submissionID]
	if len(list) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "latest version", fmt.Errorf("submission=%d", submissionID))
	}
	latest := list[0]
	for _, v := range list[1:] {
		if v.CreatedAt.After(latest.CreatedAt) || (v.CreatedAt.Equal(latest.CreatedAt) && v.ID > latest.ID) {
			latest = v
		}
	}
	return &latest, nil
}

func (m *memStore) GetByNumber(_ context.Context, submissionID int64, number int) (*domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions[submissionID] {
		if v.Number == number {
			copyV := v
			return &copyV, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get version", fmt.Errorf("submission=%d number=%d", submissionID, number))
}

func (m *memStore) List(_ context.Context, submissionID int64) ([]domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.Version(nil), m.versions[submissionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) CountBySubmission(_ context.Context, conferenceID int64) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]int)
	for id, s := range m.subs {
		if s.ConferenceID == conferenceID {
			out[id] = len(m.versions[id])
		}
	}
	return out, nil
}

func (m *memStore) UpdateOrganizerComment(_ context.Context, versionID int64, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for subID, list := range m.versions {
		for i := range list {
			if list[i].ID == versionID {
				m.versions[subID][i].OrganizerComment = comment
				return nil
			}
		}
	}
	return domain.WrapError(domain.ErrNotFound, "update comment", fmt.Errorf("version=%d", versionID))
}

// seed inserts a submission with the given status and n versions.
func (m *memStore) seed(conferenceID, authorID int64, status domain.SubmissionStatus, n int) *domain.Submission {
	sub := &domain.Submission{
		AuthorID:        authorID,
		ConferenceID:    conferenceID,
		Title:           "paper",
		Status:          status,
		ConversionState: domain.ConversionNone,
	}
	_ = m.Create(context.Background(), sub)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		_ = m.Append(context.Background(), &domain.Version{
			SubmissionID: sub.ID,
			Number:       i,
			SourceFile:   SourceKey(sub.ID, i, "docx"),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}
	return sub
}

// interleavingStore runs afterGet once, right after the first GetByID returns.
type interleavingStore struct {
	*memStore
	once     sync.Once
	afterGet func()
}

func (s *interleavingStore) GetByID(ctx context.Context, id int64) (*domain.Submission, error) {
	sub, err := s.memStore.GetByID(ctx, id)
	if s.afterGet != nil {
		s.once.Do(s.afterGet)
	}
	return sub, err
}

// contextStore fails status writes made with a finished context, like a real driver.
type contextStore struct {
	*memStore
}

func (s contextStore) MarkConverted(ctx context.Context, id int64, finalFile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.MarkConverted(ctx, id, finalFile)
}

func (s contextStore) MarkConversionFailed(ctx context.Context, id int64, diagnostics string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.MarkConversionFailed(ctx, id, diagnostics)
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", fmt.Errorf("key=%s", key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStorage) has(key string) bool {
	ok, _ := s.Exists(context.Background(), key)
	return ok
}

type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	keys  []string
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *keyedLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.keys = append(l.keys, key)
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

type queueFake struct {
	mu        sync.Mutex
	published []int64
	err       error
}

func (q *queueFake) PublishConversionRequested(_ context.Context, submissionID int64) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, submissionID)
	return nil
}

func (q *queueFake) SubscribeConversionRequested(context.Context, func(context.Context, int64) error) error {
	return errors.New("not implemented")
}

// converterFake writes a fixed body next to the input, like the real engine.
type converterFake struct {
	body      []byte
	err       error
	inputs    []string
	onConvert func()
}

func (c *converterFake) Convert(_ context.Context, inputPath string) (string, error) {
	c.inputs = append(c.inputs, filepath.Base(inputPath))
	if c.onConvert != nil {
		c.onConvert()
	}
	if c.err != nil {
		return "", c.err
	}
	out := inputPath[:len(inputPath)-len(filepath.Ext(inputPath))] + ".pdf"
	if err := os.WriteFile(out, c.body, 0o644); err != nil {
		return "", err
	}
	return out, nil
}

type inspectorFake struct {
	pages int
	err   error
}

func (i inspectorFake) PageCount(io.ReaderAt, int64) (int, error) {
	return i.pages, i.err
}

// mergerFake concatenates inputs with a separator so tests can assert order.
type mergerFake struct {
	err error
}

func (m mergerFake) Merge(_ context.Context, docs []io.ReadSeeker, w io.Writer) error {
	if m.err != nil {
		return m.err
	}
	for i, d := range docs {
		if i > 0 {
			if _, err := io.WriteString(w, "|"); err != nil {
				return err
			}
		}
		if _, err := io.Copy(w, d); err != nil {
			return err
		}
	}
	return nil
}

type conferenceFake struct {
	conf *domain.Conference
}

func (c conferenceFake) Get(_ context.Context, id int64) (*domain.Conference, error) {
	if c.conf == nil || c.conf.ID != id {
		return nil, domain.WrapError(domain.ErrNotFound, "get conference", fmt.Errorf("id=%d", id))
	}
	copyConf := *c.conf
	return &copyConf, nil
}

type proceedingsRepoFake struct {
	records map[int64]domain.Proceedings
	upserts int
}

func newProceedingsRepoFake() *proceedingsRepoFake {
	return &proceedingsRepoFake{records: make(map[int64]domain.Proceedings)}
}

func (f *proceedingsRepoFake) Upsert(_ context.Context, p *domain.Proceedings) error {
	f.upserts++
	p.ID = p.ConferenceID
	f.records[p.ConferenceID] = *p
	return nil
}

func (f *proceedingsRepoFake) GetByConference(_ context.Context, conferenceID int64) (*domain.Proceedings, error) {
	p, ok := f.records[conferenceID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get proceedings", fmt.Errorf("conference=%d", conferenceID))
	}
	return &p, nil
}

func organizer(t interface{ Fatalf(string, ...any) }) domain.OrganizerGrant {
	grant, err := domain.Identity{UserID: 99, Role: domain.RoleOrganizer}.AsOrganizer()
	if err != nil {
		t.Fatalf("AsOrganizer() error = %v", err)
	}
	return grant
}

func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}
