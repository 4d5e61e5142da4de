package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var insertReservationQuery = regexp.QuoteMeta(`INSERT INTO reservations`)

func TestReservationCreateWritesHolderKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		res       entity.Reservation
		consumer  interface{}
		guest     interface{}
		holderKey string
	}{
		{
			name:      "consumer",
			res:       entity.Reservation{ConsumerID: "c1"},
			consumer:  "c1",
			guest:     nil,
			holderKey: "consumer:c1",
		},
		{
			name:      "guest",
			res:       entity.Reservation{OnBehalfOfName: " Ann Lee"},
			consumer:  nil,
			guest:     " Ann Lee",
			holderKey: "guest:ann lee",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			res := tt.res
			res.ID = "res-1"
			res.AllocationID = "alloc-1"
			res.BundleID = "bundle-1"
			res.Status = entity.ReservationStatusConfirmed

			mock.ExpectQuery(insertReservationQuery).
				WithArgs("res-1", "alloc-1", "bundle-1", tt.consumer, tt.guest, tt.holderKey, "CONFIRMED", nil).
				WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

			require.NoError(t, store.Reservations().Create(ctx, &res))
			assert.Equal(t, now, res.CreatedAt)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReservationCreateDuplicateHolder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name:    "active holder index",
			err:     &pq.Error{Code: "23505", Constraint: activeHolderIndex},
			wantErr: entity.ErrDuplicateBooking,
		},
		{
			name:    "missing bundle",
			err:     &pq.Error{Code: "23503", Detail: "bundle-1 is not present"},
			wantErr: entity.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectQuery(insertReservationQuery).WillReturnError(tt.err)

			err := store.Reservations().Create(ctx, &entity.Reservation{
				ID:           "res-1",
				AllocationID: "alloc-1",
				BundleID:     "bundle-1",
				ConsumerID:   "c1",
				Status:       entity.ReservationStatusConfirmed,
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateStatusGuardsCurrentStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = $2`)).
		WithArgs("res-1", "PENDING", "CONFIRMED", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// the row exists, so someone moved it first
	mock.ExpectQuery(regexp.QuoteMeta(`FROM reservations WHERE id = $1`)).
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "allocation_id", "bundle_id", "consumer_id", "on_behalf_of_name",
			"status", "group_reservation_id", "cancel_reason", "created_at", "updated_at",
		}).AddRow("res-1", "alloc-1", "bundle-1", "c1", nil, "CANCELLED", nil, "ill", now, now))

	err := store.Reservations().UpdateStatus(ctx, "res-1", entity.ReservationStatusPending, entity.ReservationStatusConfirmed, "")
	assert.Same(t, entity.ErrConcurrencyConflict, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddGroupParticipants(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta(`UPDATE group_reservations SET participant_count = participant_count + $2 WHERE id = $1`)

	store, mock := newMockStore(t)
	mock.ExpectExec(query).WithArgs("group-1", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("group-2", 1).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Reservations().AddGroupParticipants(ctx, "group-1", 1))
	assert.ErrorIs(t, store.Reservations().AddGroupParticipants(ctx, "group-2", 1), entity.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
