package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"relay-service/internal/models"
	"relay-service/internal/repositories/postgres"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// UserService is the credential side of the relay: it registers accounts and
// issues the bearer tokens connections are verified against. The relay core
// never calls into it.
type UserService struct {
	repo      *postgres.UserRepository
	jwtSecret string
	jwtExpiry time.Duration
}

func NewUserService(repo *postgres.UserRepository, jwtSecret string, jwtExpiry time.Duration) *UserService {
	return &UserService{repo: repo, jwtSecret: jwtSecret, jwtExpiry: jwtExpiry}
}

func (s *UserService) Register(req *models.RegisterRequest) (*models.UserResponse, error) {
	exists, err := s.repo.ExistsByEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashed),
	}
	if err := s.repo.Create(user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return toUserResponse(user), nil
}

func (s *UserService) Login(req *models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.repo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &models.LoginResponse{Token: token, User: *toUserResponse(user)}, nil
}

// GenerateToken issues an HS256 token carrying the identity the relay
// attaches to the connection at accept time.
func (s *UserService) GenerateToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  strconv.FormatUint(uint64(user.ID), 10),
		"username": user.Username,
		"avatar":   user.Avatar,
		"exp":      time.Now().Add(s.jwtExpiry).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *UserService) UpdateAvatar(userID uint, avatarURL string) error {
	return s.repo.UpdateAvatar(userID, avatarURL)
}

func toUserResponse(user *models.User) *models.UserResponse {
	return &models.UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		Avatar:    user.Avatar,
	}
}
