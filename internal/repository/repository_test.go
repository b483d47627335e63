package repository

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecrypt/carecrypt-server/internal/audit"
	"github.com/carecrypt/carecrypt-server/internal/database"
	"github.com/carecrypt/carecrypt-server/internal/model"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(url)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	_, err = db.Exec(`TRUNCATE users, prescriptions, prescription_images, audit_logs, password_reset_tokens, sessions RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, repo UserRepository, username, email string) *model.User {
	t.Helper()
	user, err := repo.Create(context.Background(), model.CreateUserParams{
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$04$hash",
	})
	require.NoError(t, err)
	return user
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	jane := createUser(t, repo, "jane", "jane@example.com")

	t.Run("duplicate email maps to ErrDuplicate", func(t *testing.T) {
		_, err := repo.Create(ctx, model.CreateUserParams{Username: "other", Email: "jane@example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("duplicate username maps to ErrDuplicate", func(t *testing.T) {
		_, err := repo.Create(ctx, model.CreateUserParams{Username: "jane", Email: "other@example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("finds by username or email", func(t *testing.T) {
		byName, err := repo.FindByIdentifier(ctx, "jane")
		require.NoError(t, err)
		assert.Equal(t, jane.ID, byName.ID)

		byEmail, err := repo.FindByIdentifier(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, jane.ID, byEmail.ID)
	})

	t.Run("returns nil for unknown identifier", func(t *testing.T) {
		user, err := repo.FindByIdentifier(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("updates password hash", func(t *testing.T) {
		n, err := repo.UpdatePasswordHash(ctx, jane.ID, "$2a$04$new")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		user, err := repo.FindByID(ctx, jane.ID)
		require.NoError(t, err)
		assert.Equal(t, "$2a$04$new", user.PasswordHash)
	})
}

func TestPasswordResetRepository_MarkUsedOnce(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db.DB)
	repo := NewPasswordResetRepository(db.DB)
	ctx := context.Background()

	jane := createUser(t, users, "jane", "jane@example.com")
	token, err := repo.Create(ctx, model.CreatePasswordResetParams{
		UserID:    jane.ID,
		TokenHash: "a3f1c0ffee000000000000000000000000000000000000000000000000000000",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, token.Used)

	first, err := repo.MarkUsed(ctx, token.ID)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.MarkUsed(ctx, token.ID)
	require.NoError(t, err)
	assert.False(t, second)

	n, err := repo.DeleteStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionRepository(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db.DB)
	repo := NewSessionRepository(db.DB)
	ctx := context.Background()

	jane := createUser(t, users, "jane", "jane@example.com")
	old := time.Now().Add(-2 * time.Hour)
	session, err := repo.Create(ctx, model.CreateSessionParams{TokenHash: "h1", UserID: jane.ID, LastActive: old})
	require.NoError(t, err)

	found, err := repo.FindByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)

	n, err := repo.DeleteIdleBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err = repo.FindByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPrescriptionRepository_OwnershipScoping(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db.DB)
	repo := NewPrescriptionRepository(db.DB)
	images := NewPrescriptionImageRepository(db.DB)
	ctx := context.Background()

	alice := createUser(t, users, "alice", "alice@example.com")
	bob := createUser(t, users, "bob", "bob@example.com")

	p, err := repo.Create(ctx, model.CreatePrescriptionParams{
		UserID:      alice.ID,
		PatientName: []byte{1},
		Medication:  []byte{2},
		Dosage:      []byte{3},
	})
	require.NoError(t, err)
	assert.Nil(t, p.Notes)

	img, err := images.Create(ctx, model.CreateImageParams{PrescriptionID: p.ID, Filename: "abc.enc", OriginalExt: "png"})
	require.NoError(t, err)

	t.Run("other user cannot read", func(t *testing.T) {
		got, err := repo.FindByIDAndUser(ctx, p.ID, bob.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		owned, err := images.FindOwned(ctx, img.ID, bob.ID)
		require.NoError(t, err)
		assert.Nil(t, owned)
	})

	t.Run("other user cannot update or delete", func(t *testing.T) {
		n, err := repo.Update(ctx, model.UpdatePrescriptionParams{ID: p.ID, UserID: bob.ID, PatientName: []byte{9}, Medication: []byte{9}, Dosage: []byte{9}})
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = repo.Delete(ctx, p.ID, bob.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("owner sees image", func(t *testing.T) {
		owned, err := images.FindOwned(ctx, img.ID, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, owned)
		assert.Equal(t, "abc.enc", owned.Filename)
		assert.Equal(t, alice.ID, owned.UserID)
	})

	t.Run("referenced filenames", func(t *testing.T) {
		refs, err := images.ReferencedFilenames(ctx, []string{"abc.enc", "orphan.enc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"abc.enc"}, refs)
	})

	t.Run("delete cascades to images", func(t *testing.T) {
		n, err := repo.Delete(ctx, p.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		list, err := images.ListByPrescriptionIDs(ctx, []int64{p.ID})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestAuditLogRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditLogRepository(db.DB)
	ctx := context.Background()

	details := "Failed login attempt for: nobody"
	err := repo.Create(ctx, model.CreateAuditLogParams{
		Username: model.AnonymousUsername,
		Action:   model.AuditLoginFailed,
		Details:  &details,
	})
	require.NoError(t, err)

	var entries []model.AuditLogEntry
	require.NoError(t, db.Select(&entries, `SELECT * FROM audit_logs`))
	require.Len(t, entries, 1)
	assert.Equal(t, model.AuditLoginFailed, entries[0].Action)
	assert.Nil(t, entries[0].UserID)
}

func TestAuditLogRepository_LongIdentifierStillStored(t *testing.T) {
	db := setupTestDB(t)
	logger := audit.NewLogger(NewAuditLogRepository(db.DB))

	identifier := strings.Repeat("m", 1000)
	logger.Append(context.Background(), audit.Entry{
		Action:   model.AuditLoginFailed,
		Details:  "Failed login attempt for: " + identifier,
		Username: identifier,
		IP:       strings.Repeat("9", 300),
	})

	var entries []model.AuditLogEntry
	require.NoError(t, db.Select(&entries, `SELECT * FROM audit_logs`))
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Username, audit.MaxUsernameLength)
}
