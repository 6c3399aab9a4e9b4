package db

import (
	"context"
	"errors"
	"fmt"
	"guardpost/models"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	shiftsCollection       = "shifts"
	activeShiftsCollection = "active_shifts"
	activityCollection     = "activity_logs"
	usersCollection        = "users"
	passwordsCollection    = "passwords"
)

// activeShiftMarker is keyed by guard id. Its existence is the uniqueness
// constraint behind the one-open-shift-per-guard rule.
type activeShiftMarker struct {
	GuardID   string    `firestore:"guard_id"`
	ShiftID   string    `firestore:"shift_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

// FirestoreDB wraps the Firestore client
type FirestoreDB struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirebaseApp initializes the Firebase app shared by Firestore and Cloud Storage.
func NewFirebaseApp(ctx context.Context, projectID, credentialsPath, storageBucket string) (*firebase.App, error) {
	opt := option.WithCredentialsFile(credentialsPath)

	config := &firebase.Config{ProjectID: projectID, StorageBucket: storageBucket}
	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}
	return app, nil
}

// NewFirestoreDB initializes a new Firestore client
func NewFirestoreDB(ctx context.Context, app *firebase.App, logger *zap.Logger) (*FirestoreDB, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	return &FirestoreDB{
		client: client,
		logger: logger.With(zap.String("component", "firestore")),
	}, nil
}

// Close closes the Firestore client
func (db *FirestoreDB) Close() error {
	return db.client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (db *FirestoreDB) shiftRef(shiftID string) *firestore.DocumentRef {
	return db.client.Collection(shiftsCollection).Doc(shiftID)
}

func (db *FirestoreDB) markerRef(guardID string) *firestore.DocumentRef {
	return db.client.Collection(activeShiftsCollection).Doc(guardID)
}

// decodeAll drains iter into a slice, skipping documents that fail to parse.
func decodeAll[T any](db *FirestoreDB, iter *firestore.DocumentIterator, kind string) ([]T, error) {
	defer iter.Stop()

	var out []T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s: %w", kind, err)
		}

		var v T
		if err := doc.DataTo(&v); err != nil {
			db.logger.Warn("failed to parse document", zap.String("kind", kind), zap.String("id", doc.Ref.ID), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// --- Shift Operations ---

// CreateShift writes the open-shift marker and the shift in one transaction.
// A marker whose shift is already closed is stale and gets replaced.
func (db *FirestoreDB) CreateShift(ctx context.Context, shift *models.Shift) error {
	markerRef := db.markerRef(shift.GuardID)
	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(markerRef)
		switch {
		case err == nil:
			var marker activeShiftMarker
			if err := snap.DataTo(&marker); err != nil {
				return fmt.Errorf("failed to parse active shift marker: %w", err)
			}
			current, err := tx.Get(db.shiftRef(marker.ShiftID))
			if err != nil && !isNotFound(err) {
				return err
			}
			if err == nil {
				var existing models.Shift
				if err := current.DataTo(&existing); err != nil {
					return fmt.Errorf("failed to parse shift: %w", err)
				}
				if existing.Active() {
					return ErrActiveShiftExists
				}
			}
		case !isNotFound(err):
			return err
		}

		if err := tx.Set(markerRef, activeShiftMarker{
			GuardID:   shift.GuardID,
			ShiftID:   shift.ShiftID,
			CreatedAt: shift.CreatedAt,
		}); err != nil {
			return err
		}
		return tx.Create(db.shiftRef(shift.ShiftID), shift)
	})
	if errors.Is(err, ErrActiveShiftExists) || status.Code(err) == codes.AlreadyExists {
		return ErrActiveShiftExists
	}
	if err != nil {
		return fmt.Errorf("failed to create shift: %w", err)
	}
	return nil
}

// ActiveShift returns the guard's open shift via its marker, falling back to
// a field query for shifts written without one.
func (db *FirestoreDB) ActiveShift(ctx context.Context, guardID string) (*models.Shift, error) {
	snap, err := db.markerRef(guardID).Get(ctx)
	if err == nil {
		var marker activeShiftMarker
		if err := snap.DataTo(&marker); err != nil {
			return nil, fmt.Errorf("failed to parse active shift marker: %w", err)
		}
		doc, err := db.shiftRef(marker.ShiftID).Get(ctx)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("failed to get shift: %w", err)
		}
		if err == nil {
			var shift models.Shift
			if err := doc.DataTo(&shift); err != nil {
				return nil, fmt.Errorf("failed to parse shift: %w", err)
			}
			if shift.Active() {
				return &shift, nil
			}
		}
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("failed to get active shift marker: %w", err)
	}

	open, err := db.FindOpenShifts(ctx, guardID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, ErrNotFound
	}
	return &open[0], nil
}

// UpdateActiveShift runs fn against the marker's shift inside a transaction.
func (db *FirestoreDB) UpdateActiveShift(ctx context.Context, guardID string, fn ShiftMutator) (*models.Shift, error) {
	markerRef := db.markerRef(guardID)
	var result *models.Shift
	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(markerRef)
		if isNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var marker activeShiftMarker
		if err := snap.DataTo(&marker); err != nil {
			return fmt.Errorf("failed to parse active shift marker: %w", err)
		}

		ref := db.shiftRef(marker.ShiftID)
		doc, err := tx.Get(ref)
		if isNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var shift models.Shift
		if err := doc.DataTo(&shift); err != nil {
			return fmt.Errorf("failed to parse shift: %w", err)
		}
		if !shift.Active() {
			return ErrNotFound
		}

		if err := fn(&shift); err != nil {
			return err
		}
		if err := tx.Set(ref, &shift); err != nil {
			return err
		}
		if !shift.Active() {
			if err := tx.Delete(markerRef); err != nil {
				return err
			}
		}
		result = &shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindOpenShifts returns shifts with a null checkout, most recent first.
func (db *FirestoreDB) FindOpenShifts(ctx context.Context, guardID string) ([]models.Shift, error) {
	iter := db.client.Collection(shiftsCollection).
		Where("guard_id", "==", guardID).
		Where("check_out_time", "==", nil).
		OrderBy("check_in_time", firestore.Desc).
		Documents(ctx)
	return decodeAll[models.Shift](db, iter, "shifts")
}

// UpdateShiftIfOpen re-reads the shift in a transaction and only writes while
// its checkout is still null.
func (db *FirestoreDB) UpdateShiftIfOpen(ctx context.Context, shiftID string, fn ShiftMutator) (*models.Shift, error) {
	ref := db.shiftRef(shiftID)
	var result *models.Shift
	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if isNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var shift models.Shift
		if err := doc.DataTo(&shift); err != nil {
			return fmt.Errorf("failed to parse shift: %w", err)
		}
		if !shift.Active() {
			return ErrShiftClosed
		}

		// All reads must happen before the first write.
		markerRef := db.markerRef(shift.GuardID)
		var marker activeShiftMarker
		markerSnap, err := tx.Get(markerRef)
		switch {
		case err == nil:
			if err := markerSnap.DataTo(&marker); err != nil {
				return fmt.Errorf("failed to parse active shift marker: %w", err)
			}
		case !isNotFound(err):
			return err
		}

		if err := fn(&shift); err != nil {
			return err
		}
		if err := tx.Set(ref, &shift); err != nil {
			return err
		}
		if !shift.Active() && marker.ShiftID == shift.ShiftID {
			if err := tx.Delete(markerRef); err != nil {
				return err
			}
		}
		result = &shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetShiftPhoto upserts the evidence reference in the given slot.
func (db *FirestoreDB) SetShiftPhoto(ctx context.Context, shiftID string, slot models.PhotoSlot, photo *models.PhotoRef) error {
	field, ok := photoField(slot)
	if !ok {
		return fmt.Errorf("unknown photo slot %q", slot)
	}
	_, err := db.shiftRef(shiftID).Update(ctx, []firestore.Update{
		{Path: field, Value: photo},
		{Path: "updated_at", Value: time.Now()},
	})
	if isNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to attach photo: %w", err)
	}
	return nil
}

// ShiftHistory returns the guard's shifts, most recent first.
func (db *FirestoreDB) ShiftHistory(ctx context.Context, guardID string, limit int) ([]models.Shift, error) {
	iter := db.client.Collection(shiftsCollection).
		Where("guard_id", "==", guardID).
		OrderBy("check_in_time", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	return decodeAll[models.Shift](db, iter, "shifts")
}

// ShiftsSince returns shifts checked in at or after since.
func (db *FirestoreDB) ShiftsSince(ctx context.Context, since time.Time) ([]models.Shift, error) {
	iter := db.client.Collection(shiftsCollection).
		Where("check_in_time", ">=", since).
		Documents(ctx)
	return decodeAll[models.Shift](db, iter, "shifts")
}

// ListActiveShifts returns every shift with a null checkout.
func (db *FirestoreDB) ListActiveShifts(ctx context.Context) ([]models.Shift, error) {
	iter := db.client.Collection(shiftsCollection).
		Where("check_out_time", "==", nil).
		Documents(ctx)
	return decodeAll[models.Shift](db, iter, "shifts")
}

// --- Activity Operations ---

// InsertActivity creates an activity entry; entries are never overwritten.
func (db *FirestoreDB) InsertActivity(ctx context.Context, entry *models.ActivityLogEntry) error {
	_, err := db.client.Collection(activityCollection).Doc(entry.EntryID).Create(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// FindActivities pushes the indexed equality and range filters to Firestore
// and applies the location filters in memory.
func (db *FirestoreDB) FindActivities(ctx context.Context, filter ActivityFilter) ([]models.ActivityLogEntry, error) {
	q := db.client.Collection(activityCollection).Query
	if filter.UserID != "" {
		q = q.Where("user_id", "==", filter.UserID)
	}
	if filter.Category != "" {
		q = q.Where("category", "==", string(filter.Category))
	}
	if filter.Action != "" {
		q = q.Where("action", "==", filter.Action)
	}
	if filter.UserRole != "" {
		q = q.Where("user_role", "==", string(filter.UserRole))
	}
	if !filter.DateFrom.IsZero() {
		q = q.Where("timestamp", ">=", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		q = q.Where("timestamp", "<=", filter.DateTo)
	}
	q = q.OrderBy("timestamp", firestore.Desc)

	entries, err := decodeAll[models.ActivityLogEntry](db, q.Documents(ctx), "activity")
	if err != nil {
		return nil, err
	}

	matched := entries[:0]
	for i := range entries {
		if filter.Matches(&entries[i]) {
			matched = append(matched, entries[i])
		}
	}
	return matched, nil
}

// --- User Operations ---

// CreateUser creates a new user in Firestore
func (db *FirestoreDB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.client.Collection(usersCollection).Doc(user.UserID).Set(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (db *FirestoreDB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	doc, err := db.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (db *FirestoreDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	iter := db.client.Collection(usersCollection).
		Where("email", "==", email).
		Limit(1).
		Documents(ctx)
	users, err := decodeAll[models.User](db, iter, "users")
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

// GetAllUsers retrieves all users
func (db *FirestoreDB) GetAllUsers(ctx context.Context) ([]models.User, error) {
	return decodeAll[models.User](db, db.client.Collection(usersCollection).Documents(ctx), "users")
}

// UpdateUser updates an existing user
func (db *FirestoreDB) UpdateUser(ctx context.Context, user *models.User) error {
	_, err := db.client.Collection(usersCollection).Doc(user.UserID).Set(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// --- Password Operations ---

// StorePasswordHash stores a password hash for a user
func (db *FirestoreDB) StorePasswordHash(ctx context.Context, userID, passwordHash string) error {
	_, err := db.client.Collection(passwordsCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"user_id":       userID,
		"password_hash": passwordHash,
		"updated_at":    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to store password hash: %w", err)
	}
	return nil
}

// GetPasswordHash retrieves a password hash for a user
func (db *FirestoreDB) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	doc, err := db.client.Collection(passwordsCollection).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get password hash: %w", err)
	}

	data := doc.Data()
	if hash, ok := data["password_hash"].(string); ok {
		return hash, nil
	}

	return "", fmt.Errorf("password hash not found for user: %s", userID)
}
