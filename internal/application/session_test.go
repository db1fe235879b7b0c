package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyflash/internal/application"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

func newSession(store *fakeSettingsStore) (*application.Session, *application.RepositorySelection, *application.Preferences) {
	sel := application.NewRepositorySelection(&fakeSource{}, discardLogger())
	prefs := application.NewPreferences()
	return application.NewSession(store, sel, prefs, discardLogger()), sel, prefs
}

func TestSession_RestoreAndPersist(t *testing.T) {
	store := &fakeSettingsStore{settings: model.Settings{
		Language:              "ja",
		Repositories:          []model.Repository{{URL: repoA, WorkflowID: ptr(int64(1))}},
		SelectedRepositoryURL: ptr(repoA),
	}}
	session, sel, prefs := newSession(store)
	ctx := context.Background()

	restored := session.Restore(ctx)
	assert.Equal(t, "ja", restored.Language)
	assert.Equal(t, "ja", prefs.Language())
	repo, ok := sel.SelectedRepository()
	require.True(t, ok)
	assert.Equal(t, repoA, repo.URL)

	require.NoError(t, sel.AddRepository(repoB))
	require.NoError(t, prefs.SetLanguage("fr"))
	require.NoError(t, session.Persist(ctx))

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "fr", store.settings.Language)
	assert.Len(t, store.settings.Repositories, 2)
	assert.Equal(t, repoB, *store.settings.SelectedRepositoryURL)
}

func TestSession_RestoreInvalidLanguageFallsBack(t *testing.T) {
	store := &fakeSettingsStore{settings: model.Settings{Language: "not a tag!!", Repositories: []model.Repository{}}}
	session, _, prefs := newSession(store)

	session.Restore(context.Background())

	assert.Equal(t, model.DefaultLanguage, prefs.Language())
}

func TestSession_PersistError(t *testing.T) {
	store := &fakeSettingsStore{saveErr: errors.New("disk full")}
	session, _, _ := newSession(store)

	err := session.Persist(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestPreferences_SetLanguage(t *testing.T) {
	prefs := application.NewPreferences()
	assert.Equal(t, "en", prefs.Language())

	require.NoError(t, prefs.SetLanguage("pt-br"))
	assert.Equal(t, "pt-BR", prefs.Language(), "stored in canonical form")

	assert.ErrorIs(t, prefs.SetLanguage(""), application.ErrInvalidLanguage)
	assert.ErrorIs(t, prefs.SetLanguage("12345678901"), application.ErrInvalidLanguage)
	assert.Equal(t, "pt-BR", prefs.Language(), "unchanged after a rejected tag")
}
