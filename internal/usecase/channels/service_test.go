package channels

import (
	"errors"
	"reflect"
	"testing"

	"chapter-hub/internal/domain"
)

func TestParse(t *testing.T) {
	cases := map[string]struct {
		input    []string
		expected []domain.Channel
	}{
		"одиночный":      {[]string{"General"}, []domain.Channel{domain.ChannelGeneral}},
		"регистр":        {[]string{"social", "ATHLETICS"}, []domain.Channel{domain.ChannelSocial, domain.ChannelAthletics}},
		"через запятую":  {[]string{"Pledges, Executive"}, []domain.Channel{domain.ChannelPledges, domain.ChannelExecutive}},
		"повторы":        {[]string{"General", "general", " General "}, []domain.Channel{domain.ChannelGeneral}},
		"пустые позиции": {[]string{"", "Philanthropy,,"}, []domain.Channel{domain.ChannelPhilanthropy}},
	}
	svc := NewService(0)
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := svc.Parse(tc.input)
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if !reflect.DeepEqual(got, tc.expected) {
				t.Fatalf("ожидали %v, получили %v", tc.expected, got)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	svc := NewService(2)
	if _, err := svc.Parse([]string{"Bowling"}); !errors.Is(err, domain.ErrUnknownChannel) {
		t.Fatalf("ожидали ErrUnknownChannel, получили %v", err)
	}
	if _, err := svc.Parse(nil); !errors.Is(err, ErrNoChannels) {
		t.Fatalf("ожидали ErrNoChannels, получили %v", err)
	}
	if _, err := svc.Parse([]string{"General,Social,Pledges"}); !errors.Is(err, ErrChannelLimit) {
		t.Fatalf("ожидали ErrChannelLimit, получили %v", err)
	}
}

func TestParseOrAll(t *testing.T) {
	svc := NewService(0)
	got, err := svc.ParseOrAll(nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != len(domain.Channels()) {
		t.Fatalf("ожидали весь каталог, получили %v", got)
	}
}
