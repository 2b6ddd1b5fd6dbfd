package session_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/go-classroom/pkg/logging"
	"github.com/a-essam23/go-classroom/pkg/session"
)

var teacher = session.Profile{
	UserID:        7,
	SystemAccount: "T2024007",
	Email:         "wang@school.edu",
	RealName:      "Wang Fang",
	Role:          session.RoleTeacher,
	Permissions:   []string{"course:edit", "exam:grade"},
	IsApproved:    true,
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := session.NewFileTokenStore(path, "token")

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tok, "missing file means no credential")

	require.NoError(t, store.Save("abc"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err = session.NewFileTokenStore(path, "token").Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, store.Clear(), "clearing twice is fine")
}

func TestFileTokenStoreKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark"}`), 0o600))

	store := session.NewFileTokenStore(path, "token")
	require.NoError(t, store.Save("abc"))
	require.NoError(t, store.Clear())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, string(raw))
}

func TestFileTokenStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	store := session.NewFileTokenStore(path, "")
	_, err := store.Load()
	require.Error(t, err)

	s := session.NewStore(store, logging.Discard())
	assert.Empty(t, s.Token(), "unreadable store starts signed out")

	require.NoError(t, store.Save("fresh"))
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
}

func TestStoreRestoresCredentialWithoutProfile(t *testing.T) {
	s := session.NewStore(session.NewMemoryTokenStore("persisted"), logging.Discard())

	assert.Equal(t, "persisted", s.Token())
	assert.False(t, s.IsAuthenticated(), "profile is required")
	assert.True(t, s.NeedsVerification())
}

func TestStoreSetAndDerivedAccessors(t *testing.T) {
	tokens := session.NewMemoryTokenStore("")
	s := session.NewStore(tokens, logging.Discard())

	require.NoError(t, s.Set("tok", teacher))
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, session.RoleTeacher, s.Role())
	assert.True(t, s.HasRole(session.RoleTeacher))
	assert.False(t, s.HasRole(session.RoleAdmin))
	assert.True(t, s.HasPermission("exam:grade"))
	assert.False(t, s.HasPermission("admin:all"))
	assert.Equal(t, "T2024007", s.SystemAccount())

	persisted, _ := tokens.Load()
	assert.Equal(t, "tok", persisted)

	p, ok := s.Profile()
	require.True(t, ok)
	p.Permissions[0] = "mutated"
	assert.True(t, s.HasPermission("course:edit"), "Profile returns a copy")
}

func TestStoreUpdateProfileMerges(t *testing.T) {
	s := session.NewStore(session.NewMemoryTokenStore(""), logging.Discard())
	require.NoError(t, s.Set("tok", teacher))

	require.NoError(t, s.UpdateProfile(map[string]any{"realName": "Wang F.", "photoUrl": "/p.png", "unknown": 1}))

	p, _ := s.Profile()
	assert.Equal(t, "Wang F.", p.RealName)
	assert.Equal(t, "/p.png", p.PhotoURL)
	assert.Equal(t, "wang@school.edu", p.Email)
	assert.Equal(t, int64(7), p.UserID)

	assert.Error(t, s.UpdateProfile(map[string]any{"userId": "not a number"}))
}

func TestStoreInvalidateClearsEverything(t *testing.T) {
	tokens := session.NewMemoryTokenStore("")
	s := session.NewStore(tokens, logging.Discard())
	require.NoError(t, s.Set("tok", teacher))

	s.Invalidate()

	assert.Empty(t, s.Token())
	assert.False(t, s.IsAuthenticated())
	_, ok := s.Profile()
	assert.False(t, ok)
	assert.Equal(t, session.Role(""), s.Role())
	persisted, _ := tokens.Load()
	assert.Empty(t, persisted)
}

func TestStoreClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "7",
		"role":  "teacher",
		"perms": []string{"course:edit"},
		"exp":   exp.Unix(),
	}).SignedString([]byte("any-secret"))
	require.NoError(t, err)

	s := session.NewStore(session.NewMemoryTokenStore(signed), logging.Discard())
	claims, ok := s.Claims()
	require.True(t, ok)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, session.RoleTeacher, claims.Role)
	assert.Equal(t, []string{"course:edit"}, claims.Permissions)
	assert.True(t, claims.ExpiresAt.Equal(exp))
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(exp.Add(time.Second)))

	_, ok = session.ParseClaims("opaque-token")
	assert.False(t, ok)
}

func TestRoleSatisfies(t *testing.T) {
	assert.True(t, session.RoleAdmin.Satisfies(session.RoleTeacher))
	assert.True(t, session.RoleAdmin.Satisfies(session.RoleStudent))
	assert.True(t, session.RoleAdmin.Satisfies(session.RoleAdmin))
	assert.True(t, session.RoleTeacher.Satisfies(session.RoleTeacher))
	assert.False(t, session.RoleTeacher.Satisfies(session.RoleAdmin))
	assert.False(t, session.RoleStudent.Satisfies(session.RoleTeacher))
	assert.True(t, session.RoleStudent.Satisfies(""))
	assert.False(t, session.Role("guest").Valid())
}
