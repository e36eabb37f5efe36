package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Константы валидации
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinTransactionTitleLength = 3
	MaxTransactionTitleLength = 200
	MaxTransactionDescriptionLength = 5000
	MinMilestoneTitleLength = 1
	MaxMilestoneTitleLength = 200
	MaxMilestoneDescriptionLength = 2000
	MinDisputeReasonLength = 5
	MaxDisputeReasonLength = 2000
	MinNoteLength = 1
	MaxNoteLength = 2000
	MaxDeliverableLength = 300
	MaxMilestonesPerTransaction = 50
	MaxInspectionPeriodDays = 90
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.TrimSpace(email)
	email = strings.ToLower(email)

	// Базовая проверка формата
	if !strings.Contains(email, "@") {
		return fmt.Errorf("email должен содержать символ @")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}

	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}

	if !strings.Contains(domainPart, ".") {
		return fmt.Errorf("доменная часть email должна содержать точку")
	}

	// Проверка на валидные символы в локальной части
	emailRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !emailRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	// Проверка на валидные символы в доменной части
	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	username = strings.TrimSpace(username)

	// Проверка длины
	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	// Проверка на допустимые символы (только буквы, цифры и подчеркивание)
	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	// Проверка, что не начинается с цифры
	if len(username) > 0 && unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateTransactionTitle проверяет заголовок сделки.
func ValidateTransactionTitle(title string) error {
	if title == "" {
		return fmt.Errorf("заголовок сделки обязателен")
	}

	title = strings.TrimSpace(title)

	if err := ValidateLength("заголовок сделки", title, MinTransactionTitleLength, MaxTransactionTitleLength); err != nil {
		return err
	}

	return nil
}

// ValidateTransactionDescription проверяет описание сделки.
func ValidateTransactionDescription(description string) error {
	if description == "" {
		return nil
	}

	description = strings.TrimSpace(description)

	return ValidateLength("описание сделки", description, 0, MaxTransactionDescriptionLength)
}

// ValidateMilestoneTitle проверяет название этапа.
func ValidateMilestoneTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("название этапа обязательно")
	}

	return ValidateLength("название этапа", strings.TrimSpace(title), MinMilestoneTitleLength, MaxMilestoneTitleLength)
}

// ValidateMilestoneDescription проверяет описание этапа.
func ValidateMilestoneDescription(description string) error {
	if description == "" {
		return nil
	}

	return ValidateLength("описание этапа", strings.TrimSpace(description), 0, MaxMilestoneDescriptionLength)
}

// ValidateMilestoneCount проверяет число этапов в сделке.
func ValidateMilestoneCount(count int) error {
	if count > MaxMilestonesPerTransaction {
		return fmt.Errorf("число этапов не может превышать %d", MaxMilestonesPerTransaction)
	}
	return nil
}

// ValidateDisputeReason проверяет причину спора.
func ValidateDisputeReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("причина спора обязательна")
	}

	return ValidateLength("причина спора", strings.TrimSpace(reason), MinDisputeReasonLength, MaxDisputeReasonLength)
}

// ValidateNoteContent проверяет содержимое комментария к этапу.
func ValidateNoteContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("комментарий не может быть пустым")
	}

	return ValidateLength("комментарий", strings.TrimSpace(content), MinNoteLength, MaxNoteLength)
}

// ValidateDeliverableTitle проверяет пункт чек-листа этапа.
func ValidateDeliverableTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("пункт чек-листа не может быть пустым")
	}

	return ValidateLength("пункт чек-листа", strings.TrimSpace(title), 1, MaxDeliverableLength)
}

// ValidateInspectionPeriod проверяет срок проверки в днях.
func ValidateInspectionPeriod(days int) error {
	if days < 0 {
		return fmt.Errorf("срок проверки не может быть отрицательным")
	}
	if days > MaxInspectionPeriodDays {
		return fmt.Errorf("срок проверки не может превышать %d дней", MaxInspectionPeriodDays)
	}
	return nil
}
