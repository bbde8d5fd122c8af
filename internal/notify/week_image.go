package notify

import (
	"bytes"
	"image/color"
	"strconv"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Константы размеров и отступов
const (
	imageWidth       = 1120
	imageHeight      = 720
	headerHeight     = 70
	leftLabelsWidth  = 60
	legendWidth      = 110
	dayPaddingX      = 6
	minSlotHeight    = 8.0
	slotBorderRadius = 5.0
	shadowOffset     = 2.0
	totalDaysInWeek  = 7
	hourPaddingTop   = 1
	hourPaddingBot   = 1
	defaultMinHour   = 8
	defaultMaxHour   = 20
	maxSlotTitleLen  = 18
)

// Цветовая схема
var (
	bgColor          = color.RGBA{245, 246, 248, 255}
	textColor        = color.RGBA{80, 85, 90, 220}
	hourLabelColor   = color.RGBA{110, 115, 120, 200}
	hourLineColor    = color.NRGBA{150, 150, 150, 255}
	todayBgColor     = color.NRGBA{255, 99, 71, 125}
	evenDayColor     = color.NRGBA{240, 240, 240, 255}
	oddDayColor      = color.NRGBA{220, 220, 220, 255}
	currentTimeColor = color.NRGBA{255, 80, 80, 200}

	slotScheduledColor = color.RGBA{133, 193, 85, 220}
	slotCancelledColor = color.RGBA{158, 158, 158, 200}
	slotTextColor      = color.RGBA{20, 24, 28, 230}
	slotShadowColor    = color.RGBA{0, 0, 0, 20}

	legendItemColor = color.RGBA{70, 74, 78, 220}
)

// basicfont покрывает только ASCII, поэтому подписи на картинке латиницей
var (
	weekdayShortLatin = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	monthNamesLatin   = [...]string{"", "January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"}
)

type weekBounds struct {
	start time.Time
	end   time.Time
}

type hourRange struct {
	start int
	end   int
	total int
}

// RenderWeek рисует PNG с неделей, в которую попадает первое вхождение сессии.
// Время показывается в часовом поясе сессии; now подсвечивает текущий день.
func RenderWeek(session *model.StudySession, occurrences []model.StudySessionOccurrence, now time.Time) ([]byte, error) {
	loc := session.DisplayLocation()

	anchor := session.StartsAt
	if len(occurrences) > 0 {
		anchor = occurrences[0].StartsAt
	}
	week := normalizeToWeekBounds(anchor.In(loc))
	today := normalizeToDay(now.In(loc))
	highlightToday := isTodayInWeek(today, week)

	byDay := groupByDay(occurrences, week, loc)
	hours := calculateHourRange(byDay)

	dc := createCanvas()
	dc.SetFontFace(basicfont.Face7x13)

	dayWidth := (imageWidth - leftLabelsWidth - legendWidth) / totalDaysInWeek
	dayHeight := imageHeight - headerHeight
	cellHeight := float64(dayHeight) / float64(hours.total)

	drawHeader(dc, week, session.Title)
	drawHourLabels(dc, hours, cellHeight)

	day := week.start
	for i := 0; i < totalDaysInWeek; i++ {
		x := float64(leftLabelsWidth + i*dayWidth)
		y := float64(headerHeight)
		isToday := highlightToday && isSameDay(day, today)

		drawDayBackground(dc, x, y, dayWidth, dayHeight, i, isToday)
		drawDayHeader(dc, day, x, y, dayWidth)
		drawHourLines(dc, x, y, dayWidth, hours, cellHeight)
		for _, occ := range byDay[day.Format("2006-01-02")] {
			drawOccurrence(dc, occ, session.Title, x, y, dayWidth, hours, cellHeight)
		}

		day = day.AddDate(0, 0, 1)
	}

	if highlightToday {
		drawCurrentTimeLine(dc, now.In(loc), hours, cellHeight, dayWidth)
	}
	drawLegend(dc, dayWidth)

	return encodeImage(dc)
}

// normalizeToWeekBounds нормализует дату к границам недели (Пн-Вс)
func normalizeToWeekBounds(date time.Time) weekBounds {
	normalized := normalizeToDay(date)

	daysSinceMonday := int(normalized.Weekday()) - 1
	if normalized.Weekday() == time.Sunday {
		daysSinceMonday = 6
	}

	start := normalized.AddDate(0, 0, -daysSinceMonday)
	return weekBounds{start: start, end: start.AddDate(0, 0, 6)}
}

func normalizeToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isTodayInWeek(today time.Time, week weekBounds) bool {
	return !today.Before(week.start) && !today.After(week.end)
}

func isSameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// groupByDay раскладывает вхождения недели по дням, переводя их в пояс сессии
func groupByDay(occurrences []model.StudySessionOccurrence, week weekBounds, loc *time.Location) map[string][]model.StudySessionOccurrence {
	byDay := make(map[string][]model.StudySessionOccurrence)
	weekEnd := week.end.AddDate(0, 0, 1)

	for _, occ := range occurrences {
		start := occ.StartsAt.In(loc)
		if start.Before(week.start) || !start.Before(weekEnd) {
			continue
		}
		occ.StartsAt = start
		occ.EndsAt = occ.EndsAt.In(loc)
		key := start.Format("2006-01-02")
		byDay[key] = append(byDay[key], occ)
	}
	return byDay
}

// calculateHourRange определяет диапазон часов для отображения
func calculateHourRange(byDay map[string][]model.StudySessionOccurrence) hourRange {
	minHour := 24
	maxHour := 0

	for _, occs := range byDay {
		for _, occ := range occs {
			startH := occ.StartsAt.Hour()
			endH := occ.EndsAt.Hour()
			if occ.EndsAt.Minute() > 0 {
				endH++
			}
			if !isSameDay(occ.StartsAt, occ.EndsAt) {
				endH = 24
			}
			if startH < minHour {
				minHour = startH
			}
			if endH > maxHour {
				maxHour = endH
			}
		}
	}

	if minHour == 24 {
		minHour = defaultMinHour
		maxHour = defaultMaxHour
	}

	startHour := minHour - hourPaddingTop
	endHour := maxHour + hourPaddingBot
	if startHour < 0 {
		startHour = 0
	}
	if endHour > 23 {
		endHour = 23
	}

	return hourRange{start: startHour, end: endHour, total: endHour - startHour + 1}
}

func createCanvas() *gg.Context {
	dc := gg.NewContext(imageWidth, imageHeight)
	dc.SetColor(bgColor)
	dc.Clear()
	return dc
}

// drawHeader рисует название сессии и месяц
func drawHeader(dc *gg.Context, week weekBounds, title string) {
	months := monthNamesLatin[week.start.Month()]
	if week.start.Month() != week.end.Month() {
		months += " - " + monthNamesLatin[week.end.Month()]
	}
	months += " " + strconv.Itoa(week.end.Year())

	dc.SetColor(textColor)
	dc.DrawStringAnchored(asciiOnly(title), float64(leftLabelsWidth), float64(headerHeight)/4, 0, 0.5)
	dc.DrawStringAnchored(months, float64(imageWidth-legendWidth), float64(headerHeight)/4, 1, 0.5)
}

func drawHourLabels(dc *gg.Context, hours hourRange, cellHeight float64) {
	dc.SetColor(hourLabelColor)
	for i := 0; i < hours.total; i++ {
		y := float64(headerHeight) + float64(i)*cellHeight
		dc.DrawStringAnchored(formatHourLabel(hours.start+i), float64(leftLabelsWidth)-8, y, 1, 0.5)
	}
}

func drawDayBackground(dc *gg.Context, x, y float64, dayWidth, dayHeight, dayIndex int, isToday bool) {
	switch {
	case isToday:
		dc.SetColor(todayBgColor)
	case dayIndex%2 == 0:
		dc.SetColor(evenDayColor)
	default:
		dc.SetColor(oddDayColor)
	}
	dc.DrawRectangle(x, y, float64(dayWidth), float64(dayHeight))
	dc.Fill()
}

// drawDayHeader рисует день недели и дату над колонкой
func drawDayHeader(dc *gg.Context, date time.Time, x, y float64, dayWidth int) {
	dc.SetColor(textColor)
	label := weekdayShortLatin[date.Weekday()] + " " + date.Format("02.01")
	dc.DrawStringAnchored(label, x+float64(dayWidth)/2, y-12, 0.5, 0)
}

func drawHourLines(dc *gg.Context, x, y float64, dayWidth int, hours hourRange, cellHeight float64) {
	dc.SetLineWidth(0.3)
	dc.SetColor(hourLineColor)
	for i := 0; i <= hours.total; i++ {
		hy := y + float64(i)*cellHeight
		dc.DrawLine(x, hy, x+float64(dayWidth), hy)
		dc.Stroke()
	}
}

// drawOccurrence рисует одно вхождение
func drawOccurrence(dc *gg.Context, occ model.StudySessionOccurrence, title string, x, y float64, dayWidth int, hours hourRange, cellHeight float64) {
	startHour := float64(occ.StartsAt.Hour()) + float64(occ.StartsAt.Minute())/60.0
	endHour := float64(occ.EndsAt.Hour()) + float64(occ.EndsAt.Minute())/60.0
	if !isSameDay(occ.StartsAt, occ.EndsAt) || endHour > float64(hours.end+1) {
		endHour = float64(hours.end + 1)
	}

	slotY := y + (startHour-float64(hours.start))*cellHeight
	slotHeight := (endHour - startHour) * cellHeight
	if slotHeight < minSlotHeight {
		slotHeight = minSlotHeight
	}

	fill := slotScheduledColor
	if occ.IsCancelled() {
		fill = slotCancelledColor
	}
	slotWidth := float64(dayWidth) - float64(dayPaddingX*2)

	// Тень
	dc.SetColor(slotShadowColor)
	dc.DrawRoundedRectangle(x+dayPaddingX+shadowOffset, slotY+2+shadowOffset, slotWidth, slotHeight-4, slotBorderRadius)
	dc.Fill()

	dc.SetColor(fill)
	dc.DrawRoundedRectangle(x+dayPaddingX, slotY+2, slotWidth, slotHeight-4, slotBorderRadius)
	dc.Fill()

	dc.SetColor(darkenColor(fill, 0.8))
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x+dayPaddingX, slotY+2, slotWidth, slotHeight-4, slotBorderRadius)
	dc.Stroke()

	dc.SetColor(slotTextColor)
	txtX := x + dayPaddingX + 6
	txtY := slotY + 16
	dc.DrawStringAnchored(FormatTimeRange(occ.StartsAt, occ.EndsAt), txtX, txtY, 0, 0)

	if slotHeight > 34 {
		label := asciiOnly(title)
		if len(label) > maxSlotTitleLen {
			label = label[:maxSlotTitleLen-3] + "..."
		}
		dc.DrawStringAnchored(label, txtX, txtY+15, 0, 0)
	}
}

// darkenColor затемняет цвет на указанный множитель
func darkenColor(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

// drawCurrentTimeLine рисует красную линию текущего времени
func drawCurrentTimeLine(dc *gg.Context, now time.Time, hours hourRange, cellHeight float64, dayWidth int) {
	current := float64(now.Hour()) + float64(now.Minute())/60.0
	if current < float64(hours.start) || current > float64(hours.end) {
		return
	}

	lineY := float64(headerHeight) + (current-float64(hours.start))*cellHeight
	dc.SetColor(currentTimeColor)
	dc.SetLineWidth(2.0)
	dc.DrawLine(float64(leftLabelsWidth), lineY, float64(leftLabelsWidth+totalDaysInWeek*dayWidth), lineY)
	dc.Stroke()
}

func drawLegend(dc *gg.Context, dayWidth int) {
	legendX := float64(leftLabelsWidth+totalDaysInWeek*dayWidth) + 10
	legendY := float64(imageHeight) - 80.0

	items := []struct {
		Label string
		Clr   color.Color
	}{
		{"Scheduled", slotScheduledColor},
		{"Cancelled", slotCancelledColor},
	}

	boxW, boxH := 18.0, 12.0
	for _, item := range items {
		dc.SetColor(item.Clr)
		dc.DrawRoundedRectangle(legendX, legendY, boxW, boxH, 3)
		dc.Fill()

		dc.SetColor(legendItemColor)
		dc.DrawStringAnchored(item.Label, legendX+boxW+6, legendY+boxH/2, 0, 0.4)
		legendY += boxH + 12
	}
}

func encodeImage(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatHourLabel(h int) string {
	if h < 10 {
		return "0" + strconv.Itoa(h) + ":00"
	}
	return strconv.Itoa(h) + ":00"
}

// asciiOnly заменяет символы вне ASCII, которых нет в basicfont
func asciiOnly(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			if len(out) > 0 && out[len(out)-1] == '?' {
				continue
			}
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}
