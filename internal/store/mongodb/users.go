package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type debtDoc struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Amount    int64     `bson:"amount"`
	Reason    string    `bson:"reason"`
	IssuerID  string    `bson:"issuer"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d userDoc) toDomain() domain.User {
	return domain.User{ID: d.ID, Email: d.Email, PasswordHash: d.PasswordHash, Role: d.Role, CreatedAt: d.CreatedAt.UTC()}
}

func (d debtDoc) toDomain() domain.Debt {
	debt := domain.Debt(d)
	debt.CreatedAt = d.CreatedAt.UTC()
	debt.UpdatedAt = d.UpdatedAt.UTC()
	return debt
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := userDoc{ID: user.ID, Email: user.Email, PasswordHash: user.PasswordHash, Role: user.Role, CreatedAt: user.CreatedAt}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return nil, classify(err)
	}
	created := doc.toDomain()
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFoundOr(err)
	}
	user := doc.toDomain()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, classify(err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	users := make([]domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toDomain())
	}
	return users, nil
}

func (s *Store) CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.ID == "" {
		debt.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := debtDoc(debt)
	if _, err := s.debts.InsertOne(ctx, doc); err != nil {
		return nil, classify(err)
	}
	created := doc.toDomain()
	return &created, nil
}

func (s *Store) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc debtDoc
	if err := s.debts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFoundOr(err)
	}
	debt := doc.toDomain()
	return &debt, nil
}

func (s *Store) ListDebts(ctx context.Context, issuerID string) ([]domain.Debt, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{}
	if issuerID != "" {
		filter["issuer"] = issuerID
	}
	cur, err := s.debts.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, classify(err)
	}
	var docs []debtDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	debts := make([]domain.Debt, 0, len(docs))
	for _, d := range docs {
		debts = append(debts, d.toDomain())
	}
	return debts, nil
}

func (s *Store) UpdateDebtStatus(ctx context.Context, id, status string, at time.Time) (*domain.Debt, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc debtDoc
	err := s.debts.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updatedAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFoundOr(err)
	}
	debt := doc.toDomain()
	return &debt, nil
}
