package lobby

// Store key paths. These mirror the shared document layout every client of
// a session reads and writes:
//
//	players/{sessionID}/{playerKey}          display name
//	games/{sessionID}/waiting/{playerKey}    present until words submitted
//	words/{sessionID}/{wordKey}              submitted word text
//	games/{sessionID}/score/{teamKey}        final numeric score
const (
	playersRoot = "players"
	gamesRoot   = "games"
	wordsRoot   = "words"
)

// PlayersRoot is the top-level collection of session rosters.
func PlayersRoot() string { return playersRoot }

// GamesRoot is the top-level collection of session records.
func GamesRoot() string { return gamesRoot }

// WordsRoot is the top-level collection of session word lists.
func WordsRoot() string { return wordsRoot }

// PlayersPath is the roster of a session.
func PlayersPath(sessionID string) string { return playersRoot + "/" + sessionID }

// PlayerPath is a single roster entry.
func PlayerPath(sessionID, playerKey string) string {
	return playersRoot + "/" + sessionID + "/" + playerKey
}

// GamePath is the session's top-level record.
func GamePath(sessionID string) string { return gamesRoot + "/" + sessionID }

// WaitingPath is the session's set of players still owing words.
func WaitingPath(sessionID string) string { return gamesRoot + "/" + sessionID + "/waiting" }

// WaitingPlayerPath is one player's waiting flag.
func WaitingPlayerPath(sessionID, playerKey string) string {
	return gamesRoot + "/" + sessionID + "/waiting/" + playerKey
}

// WordsPath is the session's submitted word list.
func WordsPath(sessionID string) string { return wordsRoot + "/" + sessionID }

// WordPath is a single submitted word.
func WordPath(sessionID, wordKey string) string { return wordsRoot + "/" + sessionID + "/" + wordKey }

// ScorePath is the session's final score record.
func ScorePath(sessionID string) string { return gamesRoot + "/" + sessionID + "/score" }
