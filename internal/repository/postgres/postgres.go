package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/appointment-engine/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

type outboxRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{NewBaseRepository(db)}
}
