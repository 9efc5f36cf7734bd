package domain

import "strings"

// Channel: раздел ленты из фиксированного списка.
type Channel string

const (
	ChannelGeneral      Channel = "General"
	ChannelExecutive    Channel = "Executive"
	ChannelPledges      Channel = "Pledges"
	ChannelSocial       Channel = "Social"
	ChannelPhilanthropy Channel = "Philanthropy"
	ChannelAthletics    Channel = "Athletics"
)

// Channels возвращает все каналы в порядке отображения.
func Channels() []Channel {
	return []Channel{ChannelGeneral, ChannelExecutive, ChannelPledges, ChannelSocial, ChannelPhilanthropy, ChannelAthletics}
}

// Valid сообщает, входит ли канал в фиксированный список.
func (c Channel) Valid() bool {
	for _, ch := range Channels() {
		if ch == c {
			return true
		}
	}
	return false
}

// ParseChannel приводит ввод без учёта регистра к каноничному каналу.
func ParseChannel(raw string) (Channel, error) {
	if ch, ok := lookupChannel(raw); ok {
		return ch, nil
	}
	return "", ErrUnknownChannel
}

func lookupChannel(raw string) (Channel, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, ch := range Channels() {
		if strings.ToLower(string(ch)) == key {
			return ch, true
		}
	}
	return "", false
}

// UserStatus описывает статус участника.
type UserStatus string

const (
	StatusActif        UserStatus = "Actif"
	StatusActifSpecial UserStatus = "Actif Special"
	StatusAlumnus      UserStatus = "Alumnus"
	StatusPledge       UserStatus = "Pledge"
)

var statuses = map[string]UserStatus{
	"actif":         StatusActif,
	"actif special": StatusActifSpecial,
	"alumnus":       StatusAlumnus,
	"pledge":        StatusPledge,
}

// ParseUserStatus возвращает статус по строке без учёта регистра. Неизвестное значение
// превращается в Pledge.
func ParseUserStatus(raw string) UserStatus {
	if status, ok := statuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusPledge
}

// ExecRole описывает роль участника в бюро.
type ExecRole string

const (
	ExecNone           ExecRole = "None"
	ExecAdministrative ExecRole = "Administrative"
	ExecOperational    ExecRole = "Operational"
	ExecGeneral        ExecRole = "General"
)

var execRoles = map[string]ExecRole{
	"none":           ExecNone,
	"administrative": ExecAdministrative,
	"operational":    ExecOperational,
	"general":        ExecGeneral,
}

// ParseExecRole возвращает роль по строке без учёта регистра. Неизвестное значение
// превращается в None.
func ParseExecRole(raw string) ExecRole {
	if role, ok := execRoles[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return role
	}
	return ExecNone
}

// IsExec сообщает, входит ли пользователь в бюро.
func (u User) IsExec() bool {
	return u.Exec != "" && u.Exec != ExecNone
}

// FullName возвращает имя и фамилию через пробел.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
