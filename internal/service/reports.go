package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// feedbackExtractRunes — длина текста запроса в отчёте, если ключ пуст.
const feedbackExtractRunes = 20

// startOfDay возвращает локальную полночь дня t.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func formatDailyReport(day time.Time, archived int, requests model.RequestCounts, pending int) string {
	lines := []string{
		"[Ежедневный отчёт]",
		"Дата: " + day.Format("2006-01-02"),
		"Архивировано за сутки: " + strconv.Itoa(archived),
		fmt.Sprintf("Запросов за сутки: %d (выполнено %d, закрыто %d)", requests.Total, requests.Fulfilled, requests.Closed),
		"Ожидают сейчас: " + strconv.Itoa(pending),
	}
	return strings.Join(lines, "\n")
}

func formatWeeklyReport(from, to time.Time, archived int, top []model.SubmitterCount) string {
	lines := []string{
		"[Недельный отчёт]",
		"Период: " + from.Format("01-02") + " ~ " + to.Format("01-02"),
		"Архивировано за неделю: " + strconv.Itoa(archived),
		"Активные участники:",
	}
	lines = append(lines, formatTopSubmitters(top, archived)...)
	return strings.Join(lines, "\n")
}

func formatMonthlyReport(month time.Time, archived int, top []model.SubmitterCount) string {
	lines := []string{
		"[Месячный отчёт]",
		"Месяц: " + month.Format("2006-01"),
		"Архивировано с начала месяца: " + strconv.Itoa(archived),
		"Активные участники:",
	}
	lines = append(lines, formatTopSubmitters(top, 0)...)
	return strings.Join(lines, "\n")
}

// formatTopSubmitters — строки рейтинга; при total > 0 добавляется доля в процентах.
func formatTopSubmitters(top []model.SubmitterCount, total int) []string {
	if len(top) == 0 {
		return []string{"нет данных"}
	}
	lines := make([]string, 0, len(top))
	for i, s := range top {
		who := strconv.FormatInt(s.SubmitterID, 10)
		if s.SubmitterName != "" {
			who = s.SubmitterName + " (" + who + ")"
		}
		line := fmt.Sprintf("%d. %s - %d шт.", i+1, who, s.Count)
		if total > 0 {
			line += fmt.Sprintf(" (%.2f%%)", float64(s.Count)*100/float64(total))
		}
		lines = append(lines, line)
	}
	return lines
}

func formatFeedback(reqs []*model.PendingRequest, age time.Duration, loc *time.Location) string {
	lines := []string{fmt.Sprintf("[Невыполненные запросы старше %d ч]", int(age.Hours()))}
	for _, r := range reqs {
		what := r.Extract
		if what == "" {
			what = truncateRunes(r.Content, feedbackExtractRunes)
		}
		lines = append(lines, fmt.Sprintf("- #%d %s | пользователь: %d | %s",
			r.ID, what, r.RequesterID, r.CreatedAt.In(loc).Format("01-02 15:04")))
	}
	return strings.Join(lines, "\n")
}

func formatHotRank(rank []model.ExtractCount) string {
	lines := []string{"[Популярные запросы за 7 дней]"}
	for i, r := range rank {
		lines = append(lines, fmt.Sprintf("%d. %s - %d раз", i+1, r.Extract, r.Count))
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
