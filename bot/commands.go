package bot

import "github.com/bwmarrin/discordgo"

var (
	defaultMemberPermissions int64 = discordgo.PermissionManageServer

	urlOption = &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "url",
		Description: "the url of the feed",
		Required:    true,
	}
	keywordsOption = &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "keywords",
		Description: "comma-separated keywords",
		Required:    true,
	}
	channelOption = &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         "channel",
		Description:  "the channel to post to, defaults to this one",
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
	}

	discordCommands = []*discordgo.ApplicationCommand{
		{
			Name:                     "feeds",
			Description:              "Manage feed subscriptions",
			DefaultMemberPermissions: &defaultMemberPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				subCommand("add", "subscribe this channel to a feed", urlOption),
				subCommand("remove", "remove a feed subscription", urlOption),
				subCommand("list", "list feed subscriptions"),
				subCommand("test", "preview the newest entry of a feed", urlOption),
				subCommand("check", "check all feeds now"),
			},
		},
		{
			Name:                     "keywords",
			Description:              "Manage the keyword filter",
			DefaultMemberPermissions: &defaultMemberPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				subCommand("set", "replace the keyword list", keywordsOption),
				subCommand("add", "add keywords", keywordsOption),
				subCommand("remove", "remove keywords", keywordsOption),
				subCommand("clear", "remove every keyword, delivering all entries"),
				subCommand("reset", "restore the default keywords"),
				subCommand("list", "show the keyword list"),
			},
		},
		{
			Name:                     "logs",
			Description:              "Manage the log channel",
			DefaultMemberPermissions: &defaultMemberPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				subCommand("set", "post feed activity to a channel", channelOption),
				subCommand("remove", "stop posting feed activity"),
			},
		},
	}
)

func subCommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     options,
	}
}
