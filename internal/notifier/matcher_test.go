package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/githubalerts/internal/domain"
)

var arrow = domain.Repository{Owner: "arrow-kt", Name: "arrow"}

type fakeStore struct {
	subscribers map[domain.Repository][]domain.UserID
	users       map[domain.UserID]domain.SlackUserID
	err         error
}

func (f *fakeStore) FindSubscribers(_ context.Context, repo domain.Repository) ([]domain.UserID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subscribers[repo], nil
}

func (f *fakeStore) FindUsers(_ context.Context, ids []domain.UserID) ([]domain.User, error) {
	var out []domain.User
	for _, id := range ids {
		if slack, ok := f.users[id]; ok {
			out = append(out, domain.User{ID: id, SlackUserID: slack})
		}
	}
	return out, nil
}

func newMatcher(store *fakeStore) *Matcher {
	return NewMatcher(store, store)
}

func TestMatch_RoundTrip(t *testing.T) {
	store := &fakeStore{
		subscribers: map[domain.Repository][]domain.UserID{arrow: {1}},
		users:       map[domain.UserID]domain.SlackUserID{1: "U1"},
	}
	raw := `{"repository":{"full_name":"arrow-kt/arrow"}}`

	got, err := newMatcher(store).Match(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []domain.Notification{{SlackUserID: "U1", Event: raw}}, got)
}

func TestMatch_PreservesRawTextVerbatim(t *testing.T) {
	store := &fakeStore{
		subscribers: map[domain.Repository][]domain.UserID{arrow: {1, 2}},
		users:       map[domain.UserID]domain.SlackUserID{1: "U1", 2: "U2"},
	}
	raw := "{ \"action\" : \"opened\",\n  \"repository\": {\"full_name\": \"arrow-kt/arrow\", \"id\": 1} }"

	got, err := newMatcher(store).Match(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, n := range got {
		assert.Equal(t, raw, n.Event)
	}
	assert.ElementsMatch(t, []domain.SlackUserID{"U1", "U2"}, []domain.SlackUserID{got[0].SlackUserID, got[1].SlackUserID})
}

func TestMatch_NoSubscribers(t *testing.T) {
	got, err := newMatcher(&fakeStore{}).Match(context.Background(), `{"repository":{"full_name":"arrow-kt/arrow"}}`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractRepository_EscapedSlug(t *testing.T) {
	repo, err := ExtractRepository(`{"action":"opened","repository":{"id":1,"full_name":"arrow-kt\/arrow"}}`)
	require.NoError(t, err)
	assert.Equal(t, arrow, repo)
}

func TestMatch_FaultTolerance(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     MatchErrorKind
		fragment string
	}{
		{"malformed json", `{"repository":`, MalformedPayload, `{"repository":`},
		{"not json at all", `hello`, MalformedPayload, `hello`},
		{"missing repository", `{"zen":"hi"}`, RepoFullNameNotFound, `{"zen":"hi"}`},
		{"missing full_name", `{"repository":{"name":"arrow"}}`, RepoFullNameNotFound, `{"repository":{"name":"arrow"}}`},
		{"full_name not a string", `{"repository":{"full_name":42}}`, RepoFullNameNotFound, `{"repository":{"full_name":42}}`},
		{"repository not an object", `{"repository":"arrow-kt/arrow"}`, RepoFullNameNotFound, `{"repository":"arrow-kt/arrow"}`},
		{"top-level array", `[{"repository":{"full_name":"a/b"}}]`, RepoFullNameNotFound, `[{"repository":{"full_name":"a/b"}}]`},
		{"no slash", `{"repository":{"full_name":"arrow"}}`, CannotExtractRepo, "arrow"},
		{"two slashes", `{"repository":{"full_name":"a/b/c"}}`, CannotExtractRepo, "a/b/c"},
		{"empty owner", `{"repository":{"full_name":"/arrow"}}`, CannotExtractRepo, "/arrow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newMatcher(&fakeStore{}).Match(context.Background(), tt.raw)
			assert.Empty(t, got)

			var matchErr *MatchError
			require.ErrorAs(t, err, &matchErr)
			assert.Equal(t, tt.kind, matchErr.Kind)
			assert.Equal(t, tt.fragment, matchErr.Fragment)
		})
	}
}

func TestMatch_StoreErrorIsNotAMatchError(t *testing.T) {
	boom := errors.New("db down")
	_, err := newMatcher(&fakeStore{err: boom}).Match(context.Background(), `{"repository":{"full_name":"arrow-kt/arrow"}}`)

	require.ErrorIs(t, err, boom)
	var matchErr *MatchError
	assert.False(t, errors.As(err, &matchErr))
}

func TestMatchError_TruncatesFragment(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	_, err := ExtractRepository(string(long))

	var matchErr *MatchError
	require.ErrorAs(t, err, &matchErr)
	assert.Len(t, matchErr.Fragment, fragmentLimit+3)
}
