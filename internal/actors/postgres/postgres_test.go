package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/google/uuid"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	"github.com/stretchr/testify/suite"
)

type PostgresDBTestSuite struct {
	suite.Suite
	db              *pg.DB
	postgresAdapter *PostgresDB
}

var (
	dummyTime = time.Now().Truncate(time.Second).UTC()
)

func (suite *PostgresDBTestSuite) SetupSuite() {
	opts, err := pg.ParseURL(os.Getenv("POSTGRESQL_URL"))
	suite.Require().NoError(err)
	db := pg.Connect(opts)
	suite.Require().NoError(db.Ping(context.Background()))
	dummyTimeFunc := func() time.Time {
		return dummyTime
	}
	pgDB, err := NewPostgresDB(PostgresDBArgs{DB: db}, WithNowFunc(dummyTimeFunc))
	suite.Require().NoError(err)
	suite.postgresAdapter = pgDB
	suite.db = db
}

func (suite *PostgresDBTestSuite) SetupTest() {
	_, err := suite.db.Exec("TRUNCATE TABLE recyclo.users, recyclo.listings")
	suite.Require().NoError(err)
}

func (suite *PostgresDBTestSuite) TearDownSuite() {
	suite.Require().NoError(suite.db.Close())
}

func (suite *PostgresDBTestSuite) TestSaveUser() {
	tests := []struct {
		name        string
		input       *model.User
		expectedErr error
		expectedDB  func(input *model.User, db *pg.DB)
	}{
		{
			name: "insert new user",
			input: &model.User{
				ID:           uuid.NewString(),
				DisplayName:  "Jane",
				Email:        "jane@example.com",
				Role:         model.RoleRecycler,
				PasswordHash: "hash",
			},
			expectedDB: func(input *model.User, db *pg.DB) {
				got := new(userDB)
				suite.NoError(db.Model(got).Where("id = ?", input.ID).Select())
				suite.Equal(input.DisplayName, got.DisplayName)
				suite.Equal(input.Email, got.Email)
				suite.Equal(string(input.Role), got.Role)
				suite.Equal(input.PasswordHash, got.PasswordHash)
				suite.Equal(dummyTime, got.CreatedAt.UTC())
			},
		},
		{
			name:        "duplicate email",
			input:       &model.User{DisplayName: "Other", Email: "jane@example.com", Role: model.RoleCenter},
			expectedErr: model.ErrAlreadyExists,
		},
		{
			name:  "id assigned when missing",
			input: &model.User{DisplayName: "Joe", Email: "joe@example.com", Role: model.RoleCenter},
			expectedDB: func(input *model.User, db *pg.DB) {
				suite.NotEmpty(input.ID)
			},
		},
	}

	for _, test := range tests {
		suite.Run(test.name, func() {
			err := suite.postgresAdapter.SaveUser(context.Background(), test.input)
			if test.expectedErr != nil {
				suite.ErrorIs(err, test.expectedErr)
			} else {
				suite.Require().NoError(err)
			}
			if test.expectedDB != nil {
				test.expectedDB(test.input, suite.db)
			}
		})
	}
}

func (suite *PostgresDBTestSuite) TestGetUser() {
	ctx := context.Background()
	user := &model.User{DisplayName: "Jane", Email: "jane@example.com", Role: model.RoleCenter, PasswordHash: "hash"}
	suite.Require().NoError(suite.postgresAdapter.SaveUser(ctx, user))

	got, err := suite.postgresAdapter.GetUser(ctx, user.ID)
	suite.Require().NoError(err)
	suite.Equal(user.Email, got.Email)

	got, err = suite.postgresAdapter.GetUserByEmail(ctx, "jane@example.com")
	suite.Require().NoError(err)
	suite.Equal(user.ID, got.ID)

	_, err = suite.postgresAdapter.GetUser(ctx, uuid.NewString())
	suite.ErrorIs(err, model.ErrNotFound)
	_, err = suite.postgresAdapter.GetUser(ctx, "not-a-uuid")
	suite.ErrorIs(err, model.ErrNotFound)
	_, err = suite.postgresAdapter.GetUserByEmail(ctx, "nobody@example.com")
	suite.ErrorIs(err, model.ErrNotFound)
}

func (suite *PostgresDBTestSuite) TestListings() {
	ctx := context.Background()
	for i, l := range []*model.Listing{
		{OwnerID: "a", Kind: model.MaterialGlass, Quantity: "1", Status: model.ListingAvailable, Location: &model.GeoPoint{Lat: 1, Lng: 2}},
		{OwnerID: "b", Kind: model.MaterialPaper, Quantity: "2", Status: model.ListingAvailable},
		{OwnerID: "a", Kind: model.MaterialPaper, Quantity: "3", Status: model.ListingAvailable},
	} {
		l.CreatedAt = dummyTime.Add(time.Duration(i) * time.Minute)
		suite.Require().NoError(suite.postgresAdapter.SaveListing(ctx, l))
	}

	tests := []struct {
		name       string
		query      ports.ListListingsQuery
		quantities []string
	}{
		{name: "all", quantities: []string{"3", "2", "1"}},
		{name: "by owner", query: ports.ListListingsQuery{OwnerID: "a"}, quantities: []string{"3", "1"}},
		{name: "by kind", query: ports.ListListingsQuery{Kinds: []model.MaterialKind{model.MaterialPaper}}, quantities: []string{"3", "2"}},
		{name: "no match", query: ports.ListListingsQuery{OwnerID: "z"}, quantities: []string{}},
	}
	for _, test := range tests {
		suite.Run(test.name, func() {
			got, err := suite.postgresAdapter.ListListings(ctx, test.query)
			suite.Require().NoError(err)
			quantities := []string{}
			for _, l := range got {
				quantities = append(quantities, l.Quantity)
			}
			suite.Equal(test.quantities, quantities)
		})
	}

	all, err := suite.postgresAdapter.ListListings(ctx, ports.ListListingsQuery{})
	suite.Require().NoError(err)
	suite.Equal(&model.GeoPoint{Lat: 1, Lng: 2}, all[2].Location)
	suite.Nil(all[1].Location)

	got, err := suite.postgresAdapter.GetListing(ctx, all[0].ID)
	suite.Require().NoError(err)
	suite.Equal("3", got.Quantity)
}

func TestPostgresDBSuite(t *testing.T) {
	if os.Getenv("POSTGRESQL_URL") == "" {
		t.Skip("POSTGRESQL_URL not set")
	}
	suite.Run(t, new(PostgresDBTestSuite))
}
