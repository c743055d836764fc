package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "ExamForge" {
		t.Errorf("T(AppTitle) = %q, want 'ExamForge'", got)
	}

	got = T(ctx, "ErrTitleRequired")
	if got != "Please enter an exam title" {
		t.Errorf("T(ErrTitleRequired) = %q", got)
	}
}

func TestTranslateArabic(t *testing.T) {
	ctx := initLang(t, "ar")

	got := T(ctx, "ErrTitleRequired")
	if got != "يرجى إدخال عنوان الاختبار" {
		t.Errorf("T(ErrTitleRequired) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrQuestionTextEmpty", map[string]any{"Num": 3})
	if got != "Question 3 has no text" {
		t.Errorf("Td(ErrQuestionTextEmpty, Num=3) = %q, want 'Question 3 has no text'", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer("fr", "en")
	ctx := WithLocalizer(context.Background(), loc)

	got := T(ctx, "LoginError")
	if got != "Invalid email or password" {
		t.Errorf("T(LoginError) with fr->en fallback = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}
