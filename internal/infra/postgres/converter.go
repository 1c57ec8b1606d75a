package postgres

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"
)

// UUIDToPgtype converts uuid.UUID to pgtype.UUID
func UUIDToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgtypeToUUID converts pgtype.UUID to uuid.UUID
func PgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return id.Bytes
}

// PageToPgtype converts an optional page number to pgtype.Int4
func PageToPgtype(page mo.Option[int]) pgtype.Int4 {
	p, ok := page.Get()
	if !ok {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(p), Valid: true}
}

// PgtypeToPage converts pgtype.Int4 to an optional page number
func PgtypeToPage(page pgtype.Int4) mo.Option[int] {
	if !page.Valid {
		return mo.None[int]()
	}
	return mo.Some(int(page.Int32))
}
