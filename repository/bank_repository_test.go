package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banker/models"
)

func bankRowColumns() []string {
	return []string{"id", "name", "owner_id", "co_owners", "policy_overrides", "created_at", "updated_at"}
}

func TestBankRepository_GetByID_LoadsAccounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newBankRepositoryWithTx(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	owner := int64(42)

	mock.ExpectQuery("SELECT .+ FROM banks WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(bankRowColumns()).AddRow(
			int64(1), "Goldvault", &owner, []int64{43}, []byte(`{"interest-rate":"0.0100"}`), now, now,
		))

	accounts := pgxmock.NewRows(accountRowColumns())
	addAccountRow(accounts, newTestAccount(10, 1, 1001, "1000.00"))
	addAccountRow(accounts, newTestAccount(11, 1, 1002, "2000.00"))
	mock.ExpectQuery("SELECT .+ FROM accounts WHERE bank_id").
		WithArgs(int64(1)).
		WillReturnRows(accounts)

	bank, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, bank)

	assert.Equal(t, "Goldvault", bank.Name)
	assert.True(t, bank.IsOwner(42))
	assert.True(t, bank.IsCoOwner(43))
	assert.Len(t, bank.Accounts, 2)
	stored, ok := bank.Override("interest-rate")
	assert.True(t, ok)
	assert.Equal(t, "0.0100", stored)
	assert.False(t, bank.OverridesChanged())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBankRepository_Update_MarksPersisted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newBankRepositoryWithTx(mock)
	bank := &models.Bank{ID: 3, Name: "Admin Reserve"}
	bank.SetOverride("interest-rate", "0.0200")
	require.True(t, bank.OverridesChanged())

	mock.ExpectQuery("UPDATE banks").
		WithArgs("Admin Reserve", (*int64)(nil), []int64{}, []byte(`{"interest-rate":"0.0200"}`), int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	require.NoError(t, repo.Update(context.Background(), bank))
	assert.False(t, bank.OverridesChanged())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBankRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newBankRepositoryWithTx(mock)
	owner := int64(42)
	bank := &models.Bank{Name: "Goldvault", OwnerID: &owner}
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("INSERT INTO banks").
		WithArgs("Goldvault", &owner, []int64{}, []byte(`{}`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(9), now, now))

	require.NoError(t, repo.Create(context.Background(), bank))
	assert.Equal(t, int64(9), bank.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
