package auth

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Account учётная запись администратора API (из конфигурации)
type Account struct {
	Name         string `yaml:"name"`
	ID           string `yaml:"id"` // UUID игрока; пусто - выводится из имени
	PasswordHash string `yaml:"password_hash"`
	Admin        bool   `yaml:"admin"`
}

// PlayerID UUID учётной записи
func (a Account) PlayerID() uuid.UUID {
	if id, err := uuid.Parse(a.ID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("plotmines:"+strings.ToLower(a.Name)))
}

// HashPassword returns a bcrypt hash of the password using DefaultCost.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword compares a bcrypt hashed password with its possible plaintext equivalent.
func CheckPassword(hash string, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Accounts набор учётных записей, имя без учёта регистра
type Accounts map[string]Account

// NewAccounts индексирует учётные записи по имени
func NewAccounts(list []Account) Accounts {
	out := make(Accounts, len(list))
	for _, a := range list {
		out[strings.ToLower(a.Name)] = a
	}
	return out
}

// Verify проверяет имя и пароль
func (as Accounts) Verify(name, password string) (Account, bool) {
	a, ok := as[strings.ToLower(name)]
	if !ok || !CheckPassword(a.PasswordHash, password) {
		return Account{}, false
	}
	return a, true
}
