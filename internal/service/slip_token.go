package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

const slipTokenIssuer = "campus-leave-api"

// SlipTokenIssuer signs and verifies the tokens embedded in slip QR codes.
type SlipTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	loc    *time.Location
	now    func() time.Time
}

// NewSlipTokenIssuer constructs an HS256 issuer.
func NewSlipTokenIssuer(secret string, ttl time.Duration, loc *time.Location) *SlipTokenIssuer {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if loc == nil {
		loc = time.Local
	}
	return &SlipTokenIssuer{secret: []byte(secret), ttl: ttl, loc: loc, now: time.Now}
}

// Issue signs a token describing an approved leave.
func (i *SlipTokenIssuer) Issue(record models.LeaveRecord) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("slip token secret missing")
	}
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)
	claims := &models.SlipTokenClaims{
		LeaveID:     record.LeaveID,
		StudentID:   record.StudentID,
		StudentName: record.StudentName,
		StartTime:   record.StartTime.Unix(),
		EndTime:     record.EndTime.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    slipTokenIssuer,
			Subject:   record.LeaveID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the slip details.
func (i *SlipTokenIssuer) Verify(tokenString string) (*models.LeaveSlipClaims, error) {
	claims := &models.SlipTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(slipTokenIssuer), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, appErrors.CloneWrap(appErrors.ErrInvalidToken, err, "invalid slip token")
	}
	if !token.Valid || claims.LeaveID == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid slip token claims")
	}
	return &models.LeaveSlipClaims{
		LeaveID:     claims.LeaveID,
		StudentID:   claims.StudentID,
		StudentName: claims.StudentName,
		StartTime:   time.Unix(claims.StartTime, 0).In(i.loc),
		EndTime:     time.Unix(claims.EndTime, 0).In(i.loc),
		IssuedAt:    claims.IssuedAt.Time.In(i.loc),
		ExpiresAt:   claims.ExpiresAt.Time.In(i.loc),
	}, nil
}
