package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"

	"github.com/shopspring/decimal"
)

// memStore keeps every table in maps. WithTx snapshots the maps and
// restores them when fn fails, which is how the real transaction behaves.
type memStore struct {
	mu sync.Mutex

	categories map[int64]models.Category
	products   map[int64]models.Product
	sales      map[int64]models.Sale
	lines      map[int64]models.SaleLine
	nextID     int64

	clock func() time.Time

	// failLineAt makes the n-th CreateSaleLine call (1-based) fail
	failLineAt int
	lineCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		categories: map[int64]models.Category{},
		products:   map[int64]models.Product{},
		sales:      map[int64]models.Sale{},
		lines:      map[int64]models.SaleLine{},
		nextID:     100,
		clock:      time.Now,
	}
}

type memSnapshot struct {
	categories map[int64]models.Category
	products   map[int64]models.Product
	sales      map[int64]models.Sale
	lines      map[int64]models.SaleLine
	nextID     int64
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) snapshot() memSnapshot {
	return memSnapshot{
		categories: copyMap(m.categories),
		products:   copyMap(m.products),
		sales:      copyMap(m.sales),
		lines:      copyMap(m.lines),
		nextID:     m.nextID,
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.categories = s.categories
	m.products = s.products
	m.sales = s.sales
	m.lines = s.lines
	m.nextID = s.nextID
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addProduct(id int64, name, price string, stock int) {
	m.products[id] = models.Product{
		ID:         id,
		Name:       name,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		CategoryID: 1,
	}
}

func (m *memStore) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) saleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sales)
}

func (m *memStore) lineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) linesOf(saleID int64) []models.SaleLine {
	lines := []models.SaleLine{}
	for _, l := range m.lines {
		if l.SaleID == saleID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines
}

func (m *memStore) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sale, ok := m.sales[id]
	if !ok {
		return nil, fmt.Errorf("sale %d: %w", id, store.ErrNotFound)
	}
	sale.Lines = m.linesOf(id)
	return &sale, nil
}

func (m *memStore) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sales := []models.Sale{}
	for _, sale := range m.sales {
		if filter.From != nil && sale.SaleDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.SaleDate.Before(*filter.To) {
			continue
		}
		sale.Lines = m.linesOf(sale.ID)
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].ID > sales[j].ID })
	return sales, nil
}

type memTx struct {
	m *memStore
}

func (t *memTx) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	products := []models.Product{}
	for _, id := range ids {
		if p, ok := t.m.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	p, ok := t.m.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	t.m.products[productID] = p
	return true, nil
}

func (t *memTx) IncrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	p, ok := t.m.products[productID]
	if !ok {
		return false, nil
	}
	p.Stock += quantity
	t.m.products[productID] = p
	return true, nil
}

func (t *memTx) CreateSale(ctx context.Context, sale *models.Sale) error {
	now := t.m.clock()
	sale.ID = t.m.id()
	sale.SaleDate = now
	sale.CreatedAt = now
	t.m.sales[sale.ID] = *sale
	return nil
}

func (t *memTx) CreateSaleLine(ctx context.Context, line *models.SaleLine) error {
	t.m.lineCalls++
	if t.m.failLineAt > 0 && t.m.lineCalls == t.m.failLineAt {
		return errors.New("connection reset by peer")
	}
	line.ID = t.m.id()
	line.CreatedAt = t.m.clock()
	t.m.lines[line.ID] = *line
	return nil
}

func (t *memTx) UpdateSaleTotal(ctx context.Context, saleID int64, total decimal.Decimal) error {
	sale := t.m.sales[saleID]
	sale.TotalPrice = total
	t.m.sales[saleID] = sale
	return nil
}

func (t *memTx) LockSale(ctx context.Context, id int64) (*models.Sale, error) {
	sale, ok := t.m.sales[id]
	if !ok {
		return nil, fmt.Errorf("sale %d: %w", id, store.ErrNotFound)
	}
	return &sale, nil
}

func (t *memTx) GetSaleLines(ctx context.Context, saleID int64) ([]models.SaleLine, error) {
	return t.m.linesOf(saleID), nil
}

func (t *memTx) DeleteSaleLines(ctx context.Context, saleID int64) error {
	for id, l := range t.m.lines {
		if l.SaleID == saleID {
			delete(t.m.lines, id)
		}
	}
	return nil
}

func (t *memTx) DeleteSale(ctx context.Context, saleID int64) error {
	if _, ok := t.m.sales[saleID]; !ok {
		return fmt.Errorf("sale %d: %w", saleID, store.ErrNotFound)
	}
	delete(t.m.sales, saleID)
	return nil
}

// catalog

func (m *memStore) CreateCategory(ctx context.Context, category *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == category.Name {
			return fmt.Errorf("category %q: %w", category.Name, store.ErrDuplicate)
		}
	}
	category.ID = m.id()
	m.categories[category.ID] = *category
	return nil
}

func (m *memStore) GetCategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, fmt.Errorf("category %d: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (m *memStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Category{}
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpdateCategory(ctx context.Context, category *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[category.ID]; !ok {
		return fmt.Errorf("category %d: %w", category.ID, store.ErrNotFound)
	}
	m.categories[category.ID] = *category
	return nil
}

func (m *memStore) DeleteCategory(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return fmt.Errorf("category %d: %w", id, store.ErrNotFound)
	}
	for _, p := range m.products {
		if p.CategoryID == id {
			return fmt.Errorf("category %d: %w", id, store.ErrReferenced)
		}
	}
	delete(m.categories, id)
	return nil
}

func (m *memStore) CreateProduct(ctx context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[product.CategoryID]; !ok {
		return fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
	}
	product.ID = m.id()
	m.products[product.ID] = *product
	return nil
}

func (m *memStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (m *memStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	all, _ := m.GetProducts(ctx)
	out := []models.Product{}
	for _, p := range all {
		if p.CategoryID == categoryID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) UpdateProduct(ctx context.Context, product *models.Product) error {
	if _, ok := t.m.products[product.ID]; !ok {
		return fmt.Errorf("product %d: %w", product.ID, store.ErrNotFound)
	}
	if _, ok := t.m.categories[product.CategoryID]; !ok {
		return fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
	}
	t.m.products[product.ID] = *product
	return nil
}

func (m *memStore) DeleteProduct(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	delete(m.products, id)
	return nil
}

type recordingEvents struct {
	mu      sync.Mutex
	created []int64
	deleted []int64
	err     error
}

func (e *recordingEvents) PublishSaleCreated(ctx context.Context, sale *models.Sale) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, sale.ID)
	return e.err
}

func (e *recordingEvents) PublishSaleDeleted(ctx context.Context, sale *models.Sale) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, sale.ID)
	return e.err
}

type memIdempotency struct {
	mu     sync.Mutex
	values map[string]string
	locks  map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{values: map[string]string{}, locks: map[string]string{}}
}

func (i *memIdempotency) AcquireLock(ctx context.Context, lockKey, owner string, ttl time.Duration) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, held := i.locks[lockKey]; held {
		return false, nil
	}
	i.locks[lockKey] = owner
	return true, nil
}

func (i *memIdempotency) ReleaseLock(ctx context.Context, lockKey, owner string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.locks[lockKey] == owner {
		delete(i.locks, lockKey)
	}
	return nil
}

func (i *memIdempotency) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, ok := i.values[key]
	return v, ok, nil
}

func (i *memIdempotency) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.values[key] = fmt.Sprint(value)
	return nil
}

// otp fakes

type memOtpStore struct {
	mu      sync.Mutex
	records map[string]models.OtpRecord
	nextID  int64
	findErr error
}

func newMemOtpStore() *memOtpStore {
	return &memOtpStore{records: map[string]models.OtpRecord{}}
}

func otpSlot(email, purpose string) string { return purpose + "|" + email }

func (s *memOtpStore) ReplaceOtp(ctx context.Context, otp *models.OtpRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	otp.ID = s.nextID
	otp.Used = false
	s.records[otpSlot(otp.Email, otp.Purpose)] = *otp
	return nil
}

func (s *memOtpStore) FindActiveOtp(ctx context.Context, email, purpose string, now time.Time) (*models.OtpRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	rec, ok := s.records[otpSlot(email, purpose)]
	if !ok || !rec.Active(now) {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *memOtpStore) ConsumeOtp(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, rec := range s.records {
		if rec.ID == id && !rec.Used {
			rec.Used = true
			s.records[k] = rec
			return true, nil
		}
	}
	return false, nil
}

func (s *memOtpStore) PurgeOtps(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.records {
		if rec.Used || !rec.ExpiresAt.After(before) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *memOtpStore) record(email, purpose string) (models.OtpRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[otpSlot(email, purpose)]
	return rec, ok
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.OtpRecord
	err  error
}

func (n *recordingNotifier) SendOTP(ctx context.Context, otp *models.OtpRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, *otp)
	return n.err
}

func (n *recordingNotifier) last() models.OtpRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type memLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newMemLimiter() *memLimiter {
	return &memLimiter{counts: map[string]int64{}}
}

func (l *memLimiter) RegisterOtpAttempt(ctx context.Context, email, purpose string, window time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.counts[otpSlot(email, purpose)]++
	return l.counts[otpSlot(email, purpose)], nil
}

func (l *memLimiter) ResetOtpAttempts(ctx context.Context, email, purpose string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, otpSlot(email, purpose))
	return nil
}

// admin fake

type memAdminStore struct {
	mu     sync.Mutex
	admins map[int64]models.Admin
	nextID int64
}

func newMemAdminStore() *memAdminStore {
	return &memAdminStore{admins: map[int64]models.Admin{}}
}

func (s *memAdminStore) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.admins {
		if a.Email == admin.Email {
			return fmt.Errorf("admin %s: %w", admin.Email, store.ErrDuplicate)
		}
	}
	s.nextID++
	admin.ID = s.nextID
	s.admins[admin.ID] = *admin
	return nil
}

func (s *memAdminStore) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.admins {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("admin %s: %w", email, store.ErrNotFound)
}

func (s *memAdminStore) GetAdminByID(ctx context.Context, id int64) (*models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok {
		return nil, fmt.Errorf("admin %s: %w", strconv.FormatInt(id, 10), store.ErrNotFound)
	}
	return &a, nil
}

func (s *memAdminStore) MarkAdminVerified(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok {
		return store.ErrNotFound
	}
	a.IsVerified = true
	s.admins[id] = a
	return nil
}

func (s *memAdminStore) UpdateAdminPassword(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok || a.IsVerified {
		return store.ErrNotFound
	}
	a.PasswordHash = passwordHash
	s.admins[id] = a
	return nil
}

func (s *memAdminStore) TouchLastLoginAttempt(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.admins[id]
	a.LastLoginAttempt = &at
	s.admins[id] = a
	return nil
}
