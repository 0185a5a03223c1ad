package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/liamcoop/expiry/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollate(t *testing.T) {
	ctx := context.Background()

	t.Run("groups pages by active user with admin first", func(t *testing.T) {
		src := siteSource()
		users, err := Collate(ctx, src, 14, "webstaff@example.org")
		require.NoError(t, err)
		require.Len(t, users, 3)

		assert.Equal(t, AdminUserID, users[0].User.ID)
		assert.Equal(t, "webstaff@example.org", users[0].User.Email)
		assert.Equal(t, []int{3, 4}, pageIDs(users[0].Pages))

		assert.Equal(t, 10, users[1].User.ID)
		assert.Equal(t, []int{1, 5}, pageIDs(users[1].Pages))
		assert.Equal(t, 11, users[2].User.ID)
		assert.Equal(t, []int{1, 2}, pageIDs(users[2].Pages))
	})

	t.Run("looks each user up once", func(t *testing.T) {
		src := siteSource()
		_, err := Collate(ctx, src, 14, "")
		require.NoError(t, err)
		assert.Equal(t, 3, src.userCalls)
	})

	t.Run("repeated user ids give the page once", func(t *testing.T) {
		src := siteSource()
		src.perms[2] = []int{11, 11}
		users, err := Collate(ctx, src, 14, "")
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, pageIDs(users[2].Pages))
	})

	t.Run("admin bucket present with no pages", func(t *testing.T) {
		users, err := Collate(ctx, &fakeSource{}, 14, "webstaff@example.org")
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Empty(t, users[0].Pages)
	})

	t.Run("source errors are returned", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Collate(ctx, &fakeSource{pagesErr: boom}, 14, "")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unknown user is an error", func(t *testing.T) {
		src := siteSource()
		src.perms[3] = []int{99}
		_, err := Collate(ctx, src, 14, "")
		assert.ErrorIs(t, err, content.ErrUserNotFound)
	})
}
