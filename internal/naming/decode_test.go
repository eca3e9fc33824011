package naming_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bidsort/internal/naming"
	"bidsort/internal/services"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want naming.Info
	}{
		{
			name: "compressed volume",
			in:   "/staging/FCS081C--MPRAGE--20230514101500.nii.gz",
			want: naming.Info{Base: "FCS081C--MPRAGE--20230514101500", RawSubject: "81", SessionTag: "C", Protocol: "MPRAGE", AcquisitionTime: "202305-14101500"},
		},
		{
			name: "sidecar lower-case session",
			in:   "pat_007_c2--dti_30dir--20221103.json",
			want: naming.Info{Base: "pat_007_c2--dti_30dir--20221103", RawSubject: "7", SessionTag: "C2", Protocol: "dti_30dir", AcquisitionTime: "202211-03"},
		},
		{
			name: "converter suffix kept in timestamp",
			in:   "12A--BOLD--20200101120000_e2.nii",
			want: naming.Info{Base: "12A--BOLD--20200101120000_e2", RawSubject: "12", SessionTag: "A", Protocol: "BOLD", AcquisitionTime: "202001-01120000_e2", Suffix: "_e2"},
		},
		{
			name: "dotted protocol",
			in:   "5A--ep2d_1.5mm--202001011200.bval",
			want: naming.Info{Base: "5A--ep2d_1.5mm--202001011200", RawSubject: "5", SessionTag: "A", Protocol: "ep2d_1.5mm", AcquisitionTime: "202001-011200"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := naming.Decode(tt.in)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range []string{
		"localizer_i00001.nii",
		"FCS81C--MPRAGE.nii.gz",
		"FCS81C--MPRAGE--2023--extra.nii",
		"FCSC--MPRAGE--20230514.nii",
		"FCS81--MPRAGE--20230514.nii",
		"FCS81C----20230514.nii",
		"FCS81C--MPRAGE--2023.nii",
	} {
		_, err := naming.Decode(in)
		if !errors.Is(err, services.ErrMalformedName) {
			t.Fatalf("Decode(%q) expected ErrMalformedName, got %v", in, err)
		}
	}
}

func TestFormatTimestampShape(t *testing.T) {
	for _, stamp := range []string{"20230514", "202305141015", "20230514101500"} {
		got, err := naming.FormatTimestamp(stamp)
		if err != nil {
			t.Fatalf("FormatTimestamp(%q): %v", stamp, err)
		}
		if got[6] != '-' || strings.Replace(got, "-", "", 1) != stamp {
			t.Fatalf("FormatTimestamp(%q) = %q", stamp, got)
		}
	}
}

func TestSeriesStripsConverterSuffix(t *testing.T) {
	echo1, err := naming.Decode("FCS20A--MPRAGE_me--20230514101500_e1.nii.gz")
	if err != nil {
		t.Fatal(err)
	}
	echo2, err := naming.Decode("FCS20A--MPRAGE_me--20230514101500_e2.json")
	if err != nil {
		t.Fatal(err)
	}
	if echo1.Series() != "FCS20A--MPRAGE_me--20230514101500" || echo1.Series() != echo2.Series() {
		t.Fatalf("echo series differ: %q vs %q", echo1.Series(), echo2.Series())
	}
	plain, err := naming.Decode("FCS20A--MPRAGE--20230514101500.nii.gz")
	if err != nil {
		t.Fatal(err)
	}
	if plain.Suffix != "" || plain.Series() != plain.Base {
		t.Fatalf("plain series = %q suffix %q", plain.Series(), plain.Suffix)
	}
}
