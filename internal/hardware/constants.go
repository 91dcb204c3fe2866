package hardware

const (
	AdcDevice  = "iio:device0"
	LdrChannel = 0
)

var DoMappings = map[string]struct {
	Chip int
	Line int
}{
	"led_yellow": {0, 17},
	"led_red":    {0, 27},
	"led_green":  {0, 22},
	"buzzer":     {0, 23},
}

var DiMappings = map[string]struct {
	Chip int
	Line int
}{
	"presence_sensor": {0, 5},
	"confirm_button":  {0, 6},
}
