package richtext

// availableSounds is the embedded allow-list of sound names a
// /play command may reference. Names outside this list are stripped
// out of the extracted play commands rather than rejected outright —
// an unrecognized /play is just left as plain text.
var availableSounds = []string{
	"56k", "ballmer", "bell", "bezos", "bueller", "butts", "clowntown",
	"cottoneyejoe", "crickets", "curb", "dadgummit", "dangerzone", "danielsan",
	"deeper", "donotwant", "drama", "flawless", "glados", "gogogo", "greatjob",
	"greyjoy", "guarantee", "heygirl", "honk", "horn", "horror", "incoming",
	"inconceivable", "letitgo", "live", "loggins", "makeitso", "mario_coin",
	"maybe", "noooo", "nyan", "ohmy", "ohyeah", "pushit", "rimshot", "rollout",
	"rumble", "sax", "secret", "sexyback", "story", "tada", "tmyk", "totes",
	"trololo", "trombone", "unix", "vuvuzela", "what", "whoomp", "wups",
	"yay", "yeah", "yodel",
}

var soundSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(availableSounds))
	for _, s := range availableSounds {
		m[s] = struct{}{}
	}
	return m
}()

// IsValidSound reports whether name is a recognized sound.
func IsValidSound(name string) bool {
	_, ok := soundSet[name]
	return ok
}

// AvailableSounds returns the full list of recognized sound names.
func AvailableSounds() []string {
	out := make([]string, len(availableSounds))
	copy(out, availableSounds)
	return out
}
