package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/a-essam23/go-classroom/pkg/session"
)

var (
	ErrEmailTaken     = errors.New("email is already registered")
	ErrBadCredentials = errors.New("invalid email or password")
)

type UserRecord struct {
	ID            int64
	Email         string
	RealName      string
	Role          session.Role
	StudentNumber string
	RosterID      string
	PhotoURL      string
	IsApproved    bool

	passwordHash []byte
}

func (u UserRecord) Profile() session.Profile {
	return session.Profile{
		UserID:        u.ID,
		SystemAccount: systemAccount(u),
		Email:         u.Email,
		RealName:      u.RealName,
		Role:          u.Role,
		Permissions:   rolePermissions(u.Role),
		PhotoURL:      u.PhotoURL,
		IsApproved:    u.IsApproved,
	}
}

func systemAccount(u UserRecord) string {
	if u.StudentNumber != "" {
		return u.StudentNumber
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

func rolePermissions(role session.Role) []string {
	switch role {
	case session.RoleAdmin:
		return []string{"approve_teachers", "manage_users", "manage_courses"}
	case session.RoleTeacher:
		return []string{"manage_courses", "create_checkin", "manage_scores"}
	default:
		return []string{"checkin", "view_scores"}
	}
}

// Directory is the stub's user table. Passwords are kept as bcrypt hashes.
type Directory struct {
	cost int

	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*UserRecord
	byEmail map[string]*UserRecord
	codes   map[string]string
}

// NewDirectory hashes with cost; values outside bcrypt's range fall back to the default.
func NewDirectory(cost int) *Directory {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Directory{
		cost:    cost,
		nextID:  1,
		byID:    make(map[int64]*UserRecord),
		byEmail: make(map[string]*UserRecord),
		codes:   make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Add stores u with a fresh id and returns the stored copy.
func (d *Directory) Add(u UserRecord, password string) (UserRecord, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return UserRecord{}, fmt.Errorf("hash password: %w", err)
	}
	u.Email = normalizeEmail(u.Email)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.byEmail[u.Email]; taken {
		return UserRecord{}, ErrEmailTaken
	}
	u.ID = d.nextID
	d.nextID++
	u.passwordHash = hash
	rec := u
	d.byID[rec.ID] = &rec
	d.byEmail[rec.Email] = &rec
	return rec, nil
}

func (d *Directory) Authenticate(email, password string) (UserRecord, error) {
	d.mu.RLock()
	rec, ok := d.byEmail[normalizeEmail(email)]
	var u UserRecord
	if ok {
		u = *rec
	}
	d.mu.RUnlock()

	if !ok {
		return UserRecord{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return UserRecord{}, ErrBadCredentials
	}
	return u, nil
}

func (d *Directory) Find(id int64) (UserRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.byID[id]
	if !ok {
		return UserRecord{}, false
	}
	return *rec, true
}

func (d *Directory) Exists(email string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byEmail[normalizeEmail(email)]
	return ok
}

// IssueCode creates a six digit verification code for email, replacing any earlier one.
func (d *Directory) IssueCode(email string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%06d", n.Int64())
	d.mu.Lock()
	d.codes[normalizeEmail(email)] = code
	d.mu.Unlock()
	return code, nil
}

// PendingCode returns the outstanding code for email. The stub has no mail
// transport, so this is how a developer learns it.
func (d *Directory) PendingCode(email string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	code, ok := d.codes[normalizeEmail(email)]
	return code, ok
}

// ConsumeCode reports whether code matches and, if so, invalidates it.
func (d *Directory) ConsumeCode(email, code string) bool {
	key := normalizeEmail(email)
	d.mu.Lock()
	defer d.mu.Unlock()
	want, ok := d.codes[key]
	if !ok || want != strings.TrimSpace(code) {
		return false
	}
	delete(d.codes, key)
	return true
}

// DemoPassword is the password of every seeded account.
const DemoPassword = "classroom123"

// SeedDemoUsers adds one account per role.
func SeedDemoUsers(d *Directory) error {
	demo := []UserRecord{
		{Email: "admin@example.com", RealName: "Admin", Role: session.RoleAdmin, IsApproved: true},
		{Email: "teacher@example.com", RealName: "Terry Teacher", Role: session.RoleTeacher, IsApproved: true},
		{Email: "student@example.com", RealName: "Sam Student", Role: session.RoleStudent, StudentNumber: "2024001", IsApproved: true},
	}
	for _, u := range demo {
		if _, err := d.Add(u, DemoPassword); err != nil {
			return fmt.Errorf("seed %s: %w", u.Email, err)
		}
	}
	return nil
}
