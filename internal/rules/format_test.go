package rules

import "testing"

func TestValidPassport(t *testing.T) {
	t.Run("WellFormed", func(t *testing.T) {
		valid := []string{
			"WXYZ1-ABCD2-EFGH3-IJKL4-MNOP5",
			"ab123-cd456-ef789-gh012-ij345",
			"A1_B2-C3_D4-E5_F6-G7_H8-I9_J0",
		}
		for _, s := range valid {
			if !ValidPassport(s) {
				t.Errorf("expected %q to be a valid passport", s)
			}
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		invalid := []string{
			"",
			"WXYZ1-ABCD2-EFGH3-IJKL4",         // four groups
			"WXYZ1-ABCD2-EFGH3-IJKL4-MNOP",    // short final group
			"WXYZ1-ABCD2-EFGH3-IJKL4-MNOP56",  // long final group
			"WXYZ1 ABCD2 EFGH3 IJKL4 MNOP5",   // wrong separator
			"WXYZ!-ABCD2-EFGH3-IJKL4-MNOP5",   // non-word character
			" WXYZ1-ABCD2-EFGH3-IJKL4-MNOP5",  // leading whitespace
			"WXYZ1-ABCD2-EFGH3-IJKL4-MNOP5 ",  // trailing whitespace
			"WXYZ1-ABCD2-EFGH3-IJKL4-MNOP5-Q", // extra group
		}
		for _, s := range invalid {
			if ValidPassport(s) {
				t.Errorf("expected %q to be an invalid passport", s)
			}
		}
	})
}

func TestValidDate(t *testing.T) {
	t.Run("WellFormed", func(t *testing.T) {
		valid := []string{
			"2020-01-15",
			"2020-02-29", // leap year
			"1999-12-31",
		}
		for _, s := range valid {
			if !ValidDate(s) {
				t.Errorf("expected %q to be a valid date", s)
			}
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		invalid := []string{
			"",
			"2020-02-30", // February has no 30th
			"2021-02-29", // not a leap year
			"2020-13-01", // month out of range
			"2020-00-10",
			"2020-1-5",   // missing zero padding
			"20-01-15",   // short year
			"2020/01/15", // wrong separator
			"15-01-2020", // wrong field order
		}
		for _, s := range invalid {
			if ValidDate(s) {
				t.Errorf("expected %q to be an invalid date", s)
			}
		}
	})
}

func TestValidVisaCode(t *testing.T) {
	valid := []string{"AB123-CD456", "ab0de-12345"}
	for _, s := range valid {
		if !ValidVisaCode(s) {
			t.Errorf("expected %q to be a valid visa code", s)
		}
	}

	invalid := []string{
		"",
		"AB123",
		"AB123-CD45",
		"AB123-CD4567",
		"AB123-CD456-EF789",
		"AB1 3-CD456",
	}
	for _, s := range invalid {
		if ValidVisaCode(s) {
			t.Errorf("expected %q to be an invalid visa code", s)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != 6 || d.Day() != 15 {
		t.Errorf("unexpected parsed date: %v", d)
	}

	if _, err := ParseDate("not-a-date"); err == nil {
		t.Error("expected error for malformed date")
	}
}
