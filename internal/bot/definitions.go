package bot

import (
	"context"

	"github.com/garyellow/convobot-go/internal/config"
	"github.com/garyellow/convobot-go/internal/story"
)

// DefaultBotID is used when the declarations file declares no bot.
const DefaultBotID = "default"

// DeclaredBots returns one bot provider per declared bot. With no declared
// bot, a single default bot in defaultNamespace is served.
func DeclaredBots(decls *config.Declarations, defaultNamespace string) []story.BotProvider {
	bots := decls.Bots
	if len(bots) == 0 {
		ns := defaultNamespace
		if ns == "" {
			ns = "app"
		}
		bots = []config.BotDeclaration{{ID: DefaultBotID, Namespace: ns}}
	}

	providers := make([]story.BotProvider, 0, len(bots))
	for _, b := range bots {
		providers = append(providers, story.BotProviderFunc(func(context.Context) (story.BotDefinition, error) {
			return definitionFor(b), nil
		}))
	}
	return providers
}

func definitionFor(b config.BotDeclaration) story.BotDefinition {
	def := story.BotDefinition{
		BotID:     b.ID,
		Namespace: b.Namespace,
		NLPModel:  b.NLPModel,
		Locale:    b.Locale,
	}
	if b.UnknownStory != "" {
		def.Unknown = &story.Simple{
			StoryID:     story.UnknownStoryID,
			IntentNames: []string{story.UnknownIntent},
			Answer:      story.EndWith(b.UnknownStory),
		}
	}
	return def
}
