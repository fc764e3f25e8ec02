package schedule

import (
	"testing"
	"time"
)

func validSchedule() *Schedule {
	return &Schedule{
		ID:            "sched-1",
		Name:          "weekly usage",
		Frequency:     FrequencyWeekly,
		TimeOfDay:     TimeOfDay{Hour: 9, Minute: 0},
		Timezone:      "UTC",
		DayOfWeek:     1,
		Enabled:       true,
		OutputFormats: []string{FormatPDF, FormatCSV},
		Recipients:    []string{"ops@example.com"},
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	if err != nil {
		t.Fatalf("ParseTimeOfDay failed: %v", err)
	}
	if tod.Hour != 9 || tod.Minute != 30 {
		t.Errorf("ParseTimeOfDay mismatch: got %v, want 09:30", tod)
	}
	if tod.String() != "09:30" {
		t.Errorf("String mismatch: got %s, want 09:30", tod.String())
	}
}

func TestParseTimeOfDay_Invalid(t *testing.T) {
	cases := []string{"", "9", "24:00", "12:60", "12:30:15", "noon", "-1:00"}
	for _, c := range cases {
		if _, err := ParseTimeOfDay(c); err == nil {
			t.Errorf("Expected error for %q, got nil", c)
		}
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validSchedule().Validate(); err != nil {
		t.Errorf("Expected valid schedule, got error: %v", err)
	}
}

func TestValidate_FrequencyFieldExclusivity(t *testing.T) {
	daily := validSchedule()
	daily.Frequency = FrequencyDaily
	daily.DayOfWeek = 1
	if err := daily.Validate(); err == nil {
		t.Error("Expected error for daily schedule with day_of_week")
	}

	weekly := validSchedule()
	weekly.DayOfMonth = 5
	if err := weekly.Validate(); err == nil {
		t.Error("Expected error for weekly schedule with day_of_month")
	}

	monthly := validSchedule()
	monthly.Frequency = FrequencyMonthly
	monthly.DayOfWeek = 0
	monthly.DayOfMonth = 15
	monthly.CronExpr = "* * * * *"
	if err := monthly.Validate(); err == nil {
		t.Error("Expected error for monthly schedule with cron_expr")
	}

	quarterly := validSchedule()
	quarterly.Frequency = FrequencyQuarterly
	quarterly.DayOfWeek = 0
	quarterly.DayOfMonth = 1
	if err := quarterly.Validate(); err == nil {
		t.Error("Expected error for quarterly schedule with day_of_month")
	}
}

func TestValidate_DayRanges(t *testing.T) {
	weekly := validSchedule()
	weekly.DayOfWeek = 7
	if err := weekly.Validate(); err == nil {
		t.Error("Expected error for day_of_week 7")
	}

	monthly := validSchedule()
	monthly.Frequency = FrequencyMonthly
	monthly.DayOfWeek = 0
	monthly.DayOfMonth = 32
	if err := monthly.Validate(); err == nil {
		t.Error("Expected error for day_of_month 32")
	}

	monthly.DayOfMonth = 0
	if err := monthly.Validate(); err == nil {
		t.Error("Expected error for missing day_of_month on monthly schedule")
	}
}

func TestValidate_CronFrequency(t *testing.T) {
	s := validSchedule()
	s.Frequency = FrequencyCron
	s.DayOfWeek = 0

	if err := s.Validate(); err == nil {
		t.Error("Expected error for cron schedule without cron_expr")
	}

	s.CronExpr = "0 9 * * 1"
	if err := s.Validate(); err != nil {
		t.Errorf("Expected valid cron schedule, got error: %v", err)
	}

	s.CronExpr = "every monday"
	if err := s.Validate(); err == nil {
		t.Error("Expected error for unparseable cron expression")
	}
}

func TestValidate_UnknownFrequency(t *testing.T) {
	s := validSchedule()
	s.Frequency = "hourly"
	if err := s.Validate(); err == nil {
		t.Error("Expected error for unknown frequency")
	}
}

func TestValidate_Timezone(t *testing.T) {
	s := validSchedule()
	s.Timezone = "Atlantis/Lost_City"
	if err := s.Validate(); err == nil {
		t.Error("Expected error for invalid timezone")
	}
}

func TestValidate_OutputFormatsAndRecipients(t *testing.T) {
	s := validSchedule()
	s.OutputFormats = nil
	if err := s.Validate(); err == nil {
		t.Error("Expected error for empty output formats")
	}

	s = validSchedule()
	s.OutputFormats = []string{"docx"}
	if err := s.Validate(); err == nil {
		t.Error("Expected error for unknown output format")
	}

	s = validSchedule()
	s.Recipients = nil
	if err := s.Validate(); err == nil {
		t.Error("Expected error for empty recipients")
	}
}

func TestValidate_CounterInvariant(t *testing.T) {
	s := validSchedule()
	s.RunCount = 2
	s.FailureCount = 3
	if err := s.Validate(); err == nil {
		t.Error("Expected error for failure_count > run_count")
	}
}

func TestApplyDefaults(t *testing.T) {
	s := &Schedule{}
	s.ApplyDefaults()
	if s.Timezone != "UTC" {
		t.Errorf("Timezone default mismatch: got %q, want UTC", s.Timezone)
	}
}

func TestLocation(t *testing.T) {
	s := validSchedule()
	loc, err := s.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if loc != time.UTC {
		t.Errorf("Location mismatch: got %v, want UTC", loc)
	}

	s.Timezone = "Europe/Berlin"
	loc, err = s.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if loc.String() != "Europe/Berlin" {
		t.Errorf("Location mismatch: got %v, want Europe/Berlin", loc)
	}
}
