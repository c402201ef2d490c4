package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProcessableFiles は取り込み対象のファイルが一つも無かった場合のエラー
	ErrNoProcessableFiles = errors.New("no processable code files found")

	// ErrMissingAPIKey は生成モデルのAPIキーが設定されていない場合のエラー
	ErrMissingAPIKey = errors.New("generation API key is not configured")

	// ErrProjectNotFound はプロジェクトが存在しない（または所有者が異なる）場合のエラー
	ErrProjectNotFound = errors.New("project not found")
)

// ValidationError はユーザー入力の不備や空の結果を表す（4xx 相当）
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProviderError は埋め込み・生成プロバイダの一時的な失敗を表す（5xx 相当）
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PreconditionError はリクエスト内で回復できない前提条件違反を表す
type PreconditionError struct {
	Message string
	Err     error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Validation は ValidationError を生成する
func Validation(msg string, err error) error {
	return &ValidationError{Message: msg, Err: err}
}

// Provider は ProviderError を生成する
func Provider(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

// Precondition は PreconditionError を生成する
func Precondition(msg string, err error) error {
	return &PreconditionError{Message: msg, Err: err}
}

// IsValidation はエラーチェーンに ValidationError が含まれるかを判定する
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsProvider はエラーチェーンに ProviderError が含まれるかを判定する
func IsProvider(err error) bool {
	var target *ProviderError
	return errors.As(err, &target)
}

// IsPrecondition はエラーチェーンに PreconditionError が含まれるかを判定する
func IsPrecondition(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}
